package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

const (
	msgUpdateFailed = "Ошибка при обновлении профиля"
	msgDeleteFailed = "Ошибка при удалении профиля"
	msgReauth       = "Для удаления аккаунта требуется повторный вход. Пожалуйста, войдите снова и попробуйте удалить аккаунт."
	msgUnknownUser  = "Не удалось определить пользователя для удаления"
)

// Upload - новый файл аватара.
type Upload struct {
	FileName string
	Reader   io.Reader
}

// Service - редактирование профиля и удаление аккаунта.
type Service struct {
	gw        *gateway.Client
	sess      *session.Session
	passwords identity.PasswordProvider
	log       *logger.Logger
}

func New(gw *gateway.Client, sess *session.Session, passwords identity.PasswordProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{gw: gw, sess: sess, passwords: passwords, log: log.With("component", "profile")}
}

type updateResponse struct {
	Status *models.Number `json:"status"`
	Error  string         `json:"error"`
	User   *struct {
		Avatar string `json:"avatar"`
	} `json:"user"`
}

// Update сохраняет имя и, если передан, новый аватар.
// Multipart уходит только когда есть новый файл.
func (s *Service) Update(ctx context.Context, name string, avatar *Upload) (*models.User, error) {
	current := s.sess.Current()
	if current == nil {
		return nil, apperr.Unauthenticated()
	}

	name = strings.TrimSpace(name)
	form := url.Values{
		"id":   {current.ID.String()},
		"name": {name},
	}

	var (
		body []byte
		err  error
	)
	if avatar != nil && avatar.Reader != nil {
		body, err = s.gw.PostMultipart(ctx, "/users", form, gateway.File{
			Field:    "avatar",
			FileName: avatar.FileName,
			Reader:   avatar.Reader,
		})
	} else {
		body, err = s.gw.PostForm(ctx, "/users", form)
	}
	if err != nil {
		s.log.Warn("profile update failed", "user_id", current.ID.String(), "error", err)
		return nil, apperr.New(apperr.KindRemote, msgUpdateFailed, err)
	}

	var res updateResponse
	if len(strings.TrimSpace(string(body))) > 0 {
		_ = json.Unmarshal(body, &res)
	}
	if res.Status != nil && int(*res.Status) != 0 && int(*res.Status) != 200 {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = msgUpdateFailed
		}
		return nil, apperr.New(apperr.KindRemote, msg, nil)
	}

	updated := *current
	if name != "" {
		updated.Name = name
	}
	if res.User != nil && res.User.Avatar != "" {
		updated.Avatar = res.User.Avatar
	}
	updated.Provider = models.ProviderBackend

	if err := s.sess.SetUser(updated); err != nil {
		s.log.Error("session write failed", "error", err)
		return nil, apperr.New(apperr.KindRemote, msgUpdateFailed, err)
	}
	return s.sess.Current(), nil
}

// Delete удаляет запись на бэкенде, затем аккаунт у identity-провайдера.
// Устаревшая сессия провайдера - KindReauth, без повторной попытки.
func (s *Service) Delete(ctx context.Context, confirmed bool) error {
	current := s.sess.Current()
	if current == nil {
		return apperr.Unauthenticated()
	}
	if !confirmed {
		return apperr.Field("confirm", "Подтвердите удаление профиля")
	}
	if current.ID == 0 {
		return apperr.New(apperr.KindValidation, msgUnknownUser, nil)
	}

	if _, err := s.gw.Delete(ctx, "/users/"+current.ID.String(), nil); err != nil {
		s.log.Warn("backend user delete failed", "user_id", current.ID.String(), "error", err)
		return apperr.New(apperr.KindRemote, msgDeleteFailed, err)
	}

	if current.IDToken != "" && s.passwords != nil {
		err := s.passwords.DeleteAccount(ctx, current.IDToken)
		switch {
		case err == nil, errors.Is(err, identity.ErrNotConfigured), errors.Is(err, identity.ErrUserNotFound):
		case errors.Is(err, identity.ErrRecentLoginRequired):
			// запись на бэкенде уже удалена, повторный вход нужен только для аккаунта провайдера
			s.log.Warn("identity account delete needs re-authentication", "uid", current.UID)
			return apperr.New(apperr.KindReauth, msgReauth, err)
		default:
			s.log.Warn("identity account delete failed", "uid", current.UID, "error", err)
			return apperr.New(apperr.KindPartial, msgDeleteFailed, err)
		}
	}

	if err := s.sess.Clear(); err != nil {
		s.log.Error("session clear failed", "error", err)
		return apperr.New(apperr.KindRemote, msgDeleteFailed, err)
	}
	s.log.Info("account deleted", "user_id", current.ID.String())
	return nil
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

// Outcome - результат шага входа.
type Outcome struct {
	State State
	User  *models.User
	// Аккаунт провайдера, для которого нужно выбрать роль
	Pending *identity.Account
}

// Flow - процесс входа, регистрации и выхода.
// passwords и federated могут быть nil, если провайдер не настроен.
type Flow struct {
	gw        *gateway.Client
	sess      *session.Session
	passwords identity.PasswordProvider
	federated identity.FederatedProvider
	log       *logger.Logger

	mu    sync.Mutex
	state State
}

func NewFlow(gw *gateway.Client, sess *session.Session, passwords identity.PasswordProvider, federated identity.FederatedProvider, log *logger.Logger) *Flow {
	if log == nil {
		log = logger.Nop()
	}
	f := &Flow{gw: gw, sess: sess, passwords: passwords, federated: federated, log: log.With("component", "auth"), state: StateAnonymous}
	if sess.Current() != nil {
		f.state = StateAuthenticated
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Login - вход по email и паролю через бэкенд.
func (f *Flow) Login(ctx context.Context, form LoginForm) (*models.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	f.setState(StateAuthenticating)

	user, err := f.lookupByCredentials(ctx, strings.TrimSpace(form.Email), form.Password)
	if err != nil {
		f.log.Warn("local login failed", "error", err)
		f.setState(StateAnonymous)
		return nil, apperr.New(apperr.KindCredentials, msgInvalidCredentials, err)
	}
	f.setState(StateAuthenticatedLocal)

	// Вход в identity-провайдер - по возможности: без него работает все, кроме удаления аккаунта
	if f.passwords != nil {
		acc, err := f.passwords.SignIn(ctx, strings.TrimSpace(form.Email), form.Password)
		if err != nil {
			f.log.Warn("identity provider sign-in failed", "error", err)
		} else {
			user.IDToken = acc.IDToken
			if user.UID == "" {
				user.UID = acc.UID
			}
		}
	}

	user.Provider = models.ProviderBackend
	if err := f.sess.SetUser(*user); err != nil {
		f.setState(StateAnonymous)
		return nil, apperr.New(apperr.KindCredentials, msgInvalidCredentials, err)
	}
	f.setState(StateAuthenticated)
	return f.sess.Current(), nil
}

func (f *Flow) lookupByCredentials(ctx context.Context, email, password string) (*models.User, error) {
	body, err := f.gw.Get(ctx, "/users", url.Values{"email": {email}, "password": {password}})
	if err != nil {
		return nil, err
	}
	var resp struct {
		User *models.User `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.User.ID == 0 {
		return nil, errors.New("no matching user")
	}
	return resp.User, nil
}

// FederatedURL - адрес, на который отправляем браузер для входа через Google.
func (f *Flow) FederatedURL(state string) (string, error) {
	if f.federated == nil {
		return "", apperr.New(apperr.KindRemote, msgGoogleFailed, identity.ErrNotConfigured)
	}
	f.setState(StateAuthenticating)
	return f.federated.AuthCodeURL(state), nil
}

// CompleteFederated завершает вход через Google по коду авторизации.
// Если пользователя нет в бэкенде, возвращает StateFederatedNeedsRole и аккаунт провайдера.
func (f *Flow) CompleteFederated(ctx context.Context, code string) (Outcome, error) {
	if f.federated == nil {
		return Outcome{}, apperr.New(apperr.KindRemote, msgGoogleFailed, identity.ErrNotConfigured)
	}
	f.setState(StateAuthenticating)

	acc, err := f.federated.Exchange(ctx, code)
	if err != nil {
		f.setState(StateAnonymous)
		return Outcome{}, apperr.New(apperr.KindRemote, msgGoogleFailed, err)
	}

	matched, err := f.matchFederated(ctx, acc)
	if err != nil {
		f.setState(StateAnonymous)
		return Outcome{}, apperr.New(apperr.KindRemote, msgGoogleFailed, err)
	}
	if matched == nil {
		f.setState(StateFederatedNeedsRole)
		return Outcome{State: StateFederatedNeedsRole, Pending: &acc}, nil
	}
	f.setState(StateFederatedMatched)

	// Данные бэкенда главнее, кроме uid и провайдера
	matched.UID = acc.UID
	matched.Provider = models.ProviderGoogle
	matched.IDToken = acc.IDToken
	if err := f.sess.SetUser(*matched); err != nil {
		f.setState(StateAnonymous)
		return Outcome{}, apperr.New(apperr.KindRemote, msgGoogleFailed, err)
	}
	f.setState(StateAuthenticated)
	return Outcome{State: StateAuthenticated, User: f.sess.Current()}, nil
}

func (f *Flow) matchFederated(ctx context.Context, acc identity.Account) (*models.User, error) {
	body, err := f.gw.Get(ctx, "/users", url.Values{"uid": {acc.UID}})
	if err != nil {
		return nil, err
	}
	items := gateway.ExtractList(body, "users")
	if len(items) == 0 {
		if rec := gateway.ExtractRecord(body, "user"); rec != nil {
			items = append(items, rec)
		}
	}
	users, _ := gateway.DecodeList[models.User](items)
	for _, u := range users {
		if u.UID == "" && u.Email == "" {
			continue
		}
		if (acc.UID != "" && u.UID == acc.UID) || (acc.Email != "" && strings.EqualFold(u.Email, acc.Email)) {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// ChooseRole создает пользователя бэкенда для нового Google-аккаунта.
func (f *Flow) ChooseRole(ctx context.Context, pending identity.Account, role models.Role) (*models.User, error) {
	canonical, ok := models.ParseRole(string(role))
	if !ok {
		return nil, apperr.Field("role", "Выберите роль")
	}

	name := strings.TrimSpace(pending.DisplayName)
	if name == "" {
		name = DefaultFederatedName
	}
	form := url.Values{
		"uid":      {pending.UID},
		"name":     {name},
		"email":    {pending.Email},
		"password": {throwawayPassword()},
		"role":     {string(canonical)},
	}
	body, err := f.gw.PostForm(ctx, "/users", form)
	if err != nil {
		f.log.Warn("federated account create failed", "error", err)
		return nil, apperr.New(apperr.KindRemote, msgAccountCreate, err)
	}

	var created models.User
	if rec := gateway.ExtractRecord(body, "user"); rec != nil {
		if err := json.Unmarshal(rec, &created); err != nil {
			f.log.Warn("create response not a user record", "error", err)
		}
	}
	if created.ID == 0 {
		// Бэкенд не вернул запись - находим только что созданную по uid
		if found, err := f.matchFederated(ctx, pending); err == nil && found != nil {
			created = *found
		}
	}
	if created.ID == 0 {
		return nil, apperr.New(apperr.KindRemote, msgAccountCreate, errors.New("created user has no id"))
	}
	if created.Name == "" {
		created.Name = name
	}
	if created.Email == "" {
		created.Email = pending.Email
	}
	if created.Role == "" {
		created.Role = canonical
	}
	created.UID = pending.UID
	created.Provider = models.ProviderGoogle
	created.IDToken = pending.IDToken

	if err := f.sess.SetUser(created); err != nil {
		return nil, apperr.New(apperr.KindRemote, msgAccountCreate, err)
	}
	f.setState(StateAuthenticated)
	return f.sess.Current(), nil
}

// Register создает аккаунт у провайдера и в бэкенде. В систему не входит.
func (f *Flow) Register(ctx context.Context, form RegisterForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	role, _ := models.ParseRole(form.Role)
	email := strings.TrimSpace(form.Email)

	uid := ""
	if f.passwords != nil {
		acc, err := f.passwords.SignUp(ctx, email, form.Password)
		if err != nil {
			f.log.Warn("identity provider sign-up failed", "error", err)
			if errors.Is(err, identity.ErrEmailExists) {
				return apperr.Field("email", "Этот email уже зарегистрирован")
			}
			return apperr.New(apperr.KindRemote, msgRegisterFailed, err)
		}
		uid = acc.UID
		if acc.Email != "" {
			email = acc.Email
		}
	}

	_, err := f.gw.PostForm(ctx, "/users", url.Values{
		"uid":      {uid},
		"name":     {strings.TrimSpace(form.Name)},
		"email":    {email},
		"password": {form.Password},
		"role":     {string(role)},
	})
	if err != nil {
		f.log.Warn("backend registration failed", "error", err)
		return apperr.New(apperr.KindRemote, msgRegisterFailed, err)
	}
	return nil
}

// Logout очищает сессию.
func (f *Flow) Logout() error {
	if err := f.sess.Clear(); err != nil {
		return err
	}
	f.setState(StateLoggedOut)
	return nil
}

// throwawayPassword - пароль для записи бэкенда, созданной через Google: им никто не входит.
func throwawayPassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

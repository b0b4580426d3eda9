package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
)

// UserKey - ключ, под которым запись пользователя лежит в хранилище.
const UserKey = "user"

// ErrNoRecord - в хранилище нет записи.
var ErrNoRecord = errors.New("session: no record")

// Backend - долговременное хранилище записи сессии.
type Backend interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Remove() error
}

// Reader - то, что нужно view-моделям: текущий пользователь.
type Reader interface {
	Current() *models.User
}

// Session - хранилище вошедшего пользователя.
// Любое изменение сначала пишется в Backend, затем в память.
type Session struct {
	mu      sync.RWMutex
	backend Backend
	user    *models.User
	log     *logger.Logger
}

func New(backend Backend, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{backend: backend, log: log}
}

// Load поднимает запись из хранилища. Отсутствующая или битая запись - nil.
func (s *Session) Load() *models.User {
	data, err := s.backend.Read()
	if err != nil {
		if !errors.Is(err, ErrNoRecord) {
			s.log.Warn("session read failed", "error", err)
		}
		s.set(nil)
		return nil
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID == 0 {
		s.log.Warn("corrupt session record ignored", "error", err)
		s.set(nil)
		return nil
	}
	s.set(&u)
	return s.Current()
}

// SetUser сохраняет запись. Если запись в хранилище не удалась, память не меняется.
func (s *Session) SetUser(u models.User) error {
	u = u.SessionRecord()
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := s.backend.Write(data); err != nil {
		return fmt.Errorf("persist session record: %w", err)
	}
	s.set(&u)
	return nil
}

func (s *Session) Clear() error {
	if err := s.backend.Remove(); err != nil {
		return fmt.Errorf("remove session record: %w", err)
	}
	s.set(nil)
	return nil
}

// Current возвращает копию текущего пользователя или nil.
func (s *Session) Current() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) set(u *models.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// MemoryBackend - хранилище в памяти (рабочие области и тесты).
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
	// FailWrites заставляет Write возвращать ошибку
	FailWrites bool
}

func (m *MemoryBackend) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNoRecord
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("memory backend: write refused")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Remove() error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// Raw - текущее содержимое (для тестов).
func (m *MemoryBackend) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

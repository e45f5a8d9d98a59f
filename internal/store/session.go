package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"todoapp/internal/model"
	"todoapp/internal/pkg/kvstore"
	"todoapp/internal/pkg/metrics"
)

// SessionKey 持久化会话记录的键。
const SessionKey = "auth_user"

const loginFallbackMessage = "Error desconocido al iniciar sesión"

// Authenticator 登录服务。
type Authenticator interface {
	Login(ctx context.Context, creds model.LoginCredentials) (model.User, error)
}

// SessionState 会话状态快照。
type SessionState struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Error           string      `json:"error"`
}

// SessionStore 保存当前登录用户，并与 auth_user 记录保持同步。
type SessionStore struct {
	auth   Authenticator
	kv     kvstore.Store
	logger *slog.Logger
	obs    *observers[SessionState]

	mu              sync.RWMutex
	user            *model.User
	isAuthenticated bool
	isLoading       bool
	err             string
}

// NewSessionStore 创建会话 store，并从持久化记录同步恢复登录状态。
func NewSessionStore(ctx context.Context, auth Authenticator, kv kvstore.Store, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &SessionStore{
		auth:   auth,
		kv:     kv,
		logger: logger,
		obs:    newObservers[SessionState]("session"),
	}
	s.hydrate(ctx)
	return s
}

func (s *SessionStore) hydrate(ctx context.Context) {
	raw, err := s.kv.Get(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("read session record failed", slog.String("error", err.Error()))
		}
		return
	}

	user, err := decodeUser(raw)
	if err != nil {
		s.logger.Error("discard corrupted session record", slog.String("error", err.Error()))
		if err := s.kv.Delete(ctx, SessionKey); err != nil {
			s.logger.Warn("remove session record failed", slog.String("error", err.Error()))
		}
		return
	}

	s.user = &user
	s.isAuthenticated = true
	s.logger.Info("session restored", slog.String("user_id", user.ID))
}

func decodeUser(raw string) (model.User, error) {
	var user *model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return model.User{}, fmt.Errorf("decode session: %w", err)
	}
	if user == nil || user.ID == "" {
		return model.User{}, errors.New("decode session: empty user")
	}
	return *user, nil
}

// Login 执行登录。失败只写入错误槽，从不向调用方返回错误。
func (s *SessionStore) Login(ctx context.Context, creds model.LoginCredentials) {
	s.mu.Lock()
	s.isLoading = true
	s.err = ""
	seq, state := s.obs.stamp(), s.snapshotLocked()
	s.mu.Unlock()
	s.obs.notify(seq, state)

	user, err := s.callLogin(ctx, creds)
	if err != nil {
		msg := userMessage(err, loginFallbackMessage)
		metrics.SessionLoginTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("login failed",
			slog.String("email", creds.Email),
			slog.String("error", err.Error()),
		)

		s.mu.Lock()
		s.err = msg
		s.isLoading = false
		seq, state = s.obs.stamp(), s.snapshotLocked()
		s.mu.Unlock()
		s.obs.notify(seq, state)
		return
	}

	metrics.SessionLoginTotal.WithLabelValues("success").Inc()
	s.mu.Lock()
	s.user = &user
	s.isAuthenticated = true
	s.isLoading = false
	seq, state = s.obs.stamp(), s.snapshotLocked()
	s.mu.Unlock()

	// 服务端已确认登录，调用方取消请求也要写入会话记录
	s.persist(context.WithoutCancel(ctx), user)
	s.logger.Info("login succeeded", slog.String("user_id", user.ID))
	s.obs.notify(seq, state)
}

// callLogin 把 panic 也当作一次普通的登录失败。
func (s *SessionStore) callLogin(ctx context.Context, creds model.LoginCredentials) (user model.User, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("login panic: %v", r)
		}
	}()
	return s.auth.Login(ctx, creds)
}

func (s *SessionStore) persist(ctx context.Context, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Error("encode session failed", slog.String("error", err.Error()))
		return
	}
	if err := s.kv.Set(ctx, SessionKey, string(data)); err != nil {
		s.logger.Error("write session record failed", slog.String("error", err.Error()))
	}
}

// Logout 清除会话与持久化记录。
func (s *SessionStore) Logout(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.isAuthenticated = false
	s.err = ""
	seq, state := s.obs.stamp(), s.snapshotLocked()
	s.mu.Unlock()

	if err := s.kv.Delete(context.WithoutCancel(ctx), SessionKey); err != nil {
		s.logger.Warn("remove session record failed", slog.String("error", err.Error()))
	}
	s.obs.notify(seq, state)
}

// User 返回当前用户的副本，未登录时为 nil。
func (s *SessionStore) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAuthenticated
}

func (s *SessionStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

func (s *SessionStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot 返回一致的状态快照。
func (s *SessionStore) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe 注册状态变化回调，返回取消订阅函数。
func (s *SessionStore) Subscribe(fn func(SessionState)) func() {
	return s.obs.subscribe(fn)
}

func (s *SessionStore) snapshotLocked() SessionState {
	state := SessionState{
		IsAuthenticated: s.isAuthenticated,
		IsLoading:       s.isLoading,
		Error:           s.err,
	}
	if s.user != nil {
		u := *s.user
		state.User = &u
	}
	return state
}

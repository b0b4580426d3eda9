package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/s/eduPortal/internal/config"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/handlers"
	"github.com/s/eduPortal/internal/handlers/admin"
	"github.com/s/eduPortal/internal/handlers/personal"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/middleware"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

func main() {
	// ---------------------------
	// 0. Конфигурация и логгер
	// ---------------------------
	cfg, envMissing := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}
	defer log.Sync()

	if envMissing {
		log.Warn("Не удалось загрузить файл .env. Используются системные переменные.")
	}

	// ---------------------------
	// 1. Шлюз к бэкенду
	// ---------------------------
	gw := gateway.New(gateway.Options{
		BaseURL:         cfg.BackendURL,
		MutationTimeout: cfg.RequestTimeout,
		Logger:          log,
	})

	// ---------------------------
	// 2. Identity-провайдеры
	// ---------------------------
	var passwords identity.PasswordProvider
	var firebase *identity.Firebase
	if cfg.FirebaseAPIKey != "" {
		firebase = identity.NewFirebase(identity.FirebaseOptions{APIKey: cfg.FirebaseAPIKey, Timeout: cfg.RequestTimeout, Logger: log})
		passwords = firebase
	} else {
		log.Warn("FIREBASE_API_KEY не задан: вход только через бэкенд, удаление аккаунта провайдера отключено")
	}

	var federated identity.FederatedProvider
	if cfg.GoogleEnabled() {
		oauthConfig := identity.InitGoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		federated = identity.NewGoogle(oauthConfig, firebase, log)
	} else {
		log.Warn("Переменные GOOGLE_... не установлены: вход через Google отключен")
	}

	// ---------------------------
	// 3. Сессии
	// ---------------------------
	sessionKey := cfg.SessionKey
	if sessionKey == "" {
		sessionKey = "super-secret-default-key" // Только для разработки!
		log.Warn("SESSION_KEY не задан, используется дефолтный.")
	}
	store := session.NewCookieStore([]byte(sessionKey), cfg.CookieSecure)

	// ---------------------------
	// 4. Хендлеры и роутинг
	// ---------------------------
	h := handlers.NewHandler(store, gw, passwords, federated, log)
	r := newRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsMiddleware(r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Сервер запущен", "addr", "http://localhost:"+cfg.Port, "backend", cfg.BackendURL)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

func newRouter(h *handlers.Handler) *mux.Router {
	adminService := admin.Service{Handler: h}
	personalService := personal.Service{Handler: h}

	signedIn := middleware.Authenticated(h)
	adminOnly := middleware.RequiredRole(h, models.RoleAdmin)

	r := mux.NewRouter()

	// --- Публичные маршруты ---
	r.HandleFunc("/", h.HandleMain).Methods("GET")
	r.HandleFunc("/login", h.HandleLogin).Methods("POST")
	r.HandleFunc("/register", h.HandleRegister).Methods("POST")
	r.HandleFunc("/logout", h.HandleLogout).Methods("GET", "POST")
	r.HandleFunc("/auth/google/login", h.HandleGoogleLogin).Methods("GET")
	r.HandleFunc("/auth/google/callback", h.HandleGoogleCallback).Methods("GET")
	r.HandleFunc("/auth/google/role", h.HandleGoogleRole).Methods("POST")

	// --- Уроки ---
	r.HandleFunc("/lessons", h.HandleLessons).Methods("GET")
	r.HandleFunc("/lessons", signedIn(h.HandleCreateLesson)).Methods("POST")
	r.HandleFunc("/courses/{id}/enroll", signedIn(h.HandleEnroll)).Methods("POST")
	r.HandleFunc("/lessons/{id}/complete", signedIn(h.HandleCompleteLesson)).Methods("POST")

	// --- Чаты ---
	r.HandleFunc("/chats", signedIn(h.HandleChats)).Methods("GET")
	r.HandleFunc("/chats/users", signedIn(h.HandleChatCandidates)).Methods("GET")
	r.HandleFunc("/chats/select", signedIn(h.HandleSelectChat)).Methods("POST")
	r.HandleFunc("/chats/messages", signedIn(h.HandleChatMessages)).Methods("GET")
	r.HandleFunc("/chats/messages", signedIn(h.HandleSendMessage)).Methods("POST")
	r.HandleFunc("/chats/direct", signedIn(h.HandleCreateDirect)).Methods("POST")
	r.HandleFunc("/chats/groups", signedIn(h.HandleCreateGroup)).Methods("POST")
	r.HandleFunc("/chats/{kind}/{id}", signedIn(h.HandleDeleteChat)).Methods("DELETE")
	r.HandleFunc("/groups/{id}/members/{userId}", signedIn(h.HandleRemoveMember)).Methods("DELETE")

	// --- Поддержка ---
	r.HandleFunc("/support", signedIn(h.HandleSupport)).Methods("GET")
	r.HandleFunc("/support", signedIn(h.HandleSupportSend)).Methods("POST")
	r.HandleFunc("/admin/support", adminOnly(adminService.HandleSupportPage)).Methods("GET")
	r.HandleFunc("/admin/support/select", adminOnly(adminService.HandleSelectUser)).Methods("POST")
	r.HandleFunc("/admin/support/reply", adminOnly(adminService.HandleReply)).Methods("POST")

	// --- Профиль ---
	r.HandleFunc("/personal", personalService.HandleProfile).Methods("GET")
	r.HandleFunc("/personal", signedIn(personalService.HandleProfileUpdate)).Methods("POST")
	r.HandleFunc("/personal/delete", signedIn(personalService.HandleProfileDelete)).Methods("POST")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Разрешаем запросы с любого источника (для разработки)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

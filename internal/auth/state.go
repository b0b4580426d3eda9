package auth

// State - состояние процесса входа.
type State string

const (
	StateAnonymous          State = "anonymous"
	StateAuthenticating     State = "authenticating"
	StateAuthenticatedLocal State = "authenticated_local"
	StateFederatedMatched   State = "federated_matched"
	StateFederatedNeedsRole State = "federated_needs_role"
	StateAuthenticated      State = "authenticated"
	StateLoggedOut          State = "logged_out"
)

// Сообщения для пользователя
const (
	msgInvalidCredentials = "Неправильный email или пароль"
	msgGoogleFailed       = "Ошибка входа через Google"
	msgAccountCreate      = "Ошибка создания аккаунта"
	msgRegisterFailed     = "Ошибка при регистрации"
)

// DefaultFederatedName - имя, если провайдер не отдал displayName.
const DefaultFederatedName = "Google User"

package storage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// User is an authenticated principal: a name, a superuser flag that
// bypasses every permission check, and the access tokens/keys used to
// re-authenticate on subsequent connections.
type User struct {
	ID          uint64
	Name        string
	IsSuperuser bool

	passwordHash     []byte // bcrypt hash of the login password
	sessionTokenHash []byte // bcrypt hash of the current session token, nil if none issued
	accessKey        []byte // random access key, compared with constant time
}

// NewUser creates a user record with a freshly generated access key and no
// token set; password is bcrypt-hashed immediately so no plaintext
// survives past this call.
func NewUser(id uint64, name string, superuser bool, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, WrapError(CodeInvariantViolated, err, "hash password for user %s", name)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, WrapError(CodeInvariantViolated, err, "generate access key for user %s", name)
	}
	return &User{ID: id, Name: name, IsSuperuser: superuser, passwordHash: hash, accessKey: key}, nil
}

// RestoreUser rebuilds a user record from its catalog row: the id, flags
// and password hash survive a restart; access keys and session tokens are
// deliberately ephemeral, so a restored user starts with a fresh access
// key and no token.
func RestoreUser(id uint64, name string, superuser bool, passwordHash []byte) (*User, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, WrapError(CodeInvariantViolated, err, "generate access key for user %s", name)
	}
	return &User{ID: id, Name: name, IsSuperuser: superuser, passwordHash: passwordHash, accessKey: key}, nil
}

// PasswordHash returns the stored bcrypt password hash, for the catalog
// row that persists the user across restarts.
func (u *User) PasswordHash() []byte { return append([]byte(nil), u.passwordHash...) }

// Authenticate reports whether password matches the stored hash.
func (u *User) Authenticate(password string) bool {
	return bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) == nil
}

// AccessKey returns the user's current access key, issued at creation and
// rotated by ResetAccessKey.
func (u *User) AccessKey() []byte { return append([]byte(nil), u.accessKey...) }

// CheckAccessKey compares candidate against the stored key in constant time.
func (u *User) CheckAccessKey(candidate []byte) bool {
	return subtle.ConstantTimeCompare(u.accessKey, candidate) == 1
}

// ResetAccessKey replaces the user's access key with a fresh random one.
func (u *User) ResetAccessKey() error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return WrapError(CodeInvariantViolated, err, "reset access key for user %s", u.Name)
	}
	u.accessKey = key
	return nil
}

// SetPassword rehashes password and replaces the stored hash.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return WrapError(CodeInvariantViolated, err, "hash password for user %s", u.Name)
	}
	u.passwordHash = hash
	return nil
}

// SetSuperuser changes the user's superuser flag.
func (u *User) SetSuperuser(superuser bool) { u.IsSuperuser = superuser }

// GenerateToken issues a fresh random session token, storing only its
// bcrypt hash, and returns the plaintext token — shown to the caller
// exactly once, the same way a freshly generated access key is.
func (u *User) GenerateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", WrapError(CodeInvariantViolated, err, "generate session token for user %s", u.Name)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", WrapError(CodeInvariantViolated, err, "hash session token for user %s", u.Name)
	}
	u.sessionTokenHash = hash
	return token, nil
}

// RevokeToken clears the current session token; CheckToken fails for
// every candidate until GenerateToken issues a new one.
func (u *User) RevokeToken() { u.sessionTokenHash = nil }

// CheckToken reports whether token matches the current session token.
func (u *User) CheckToken(token string) bool {
	if u.sessionTokenHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.sessionTokenHash, []byte(token)) == nil
}

package analytics

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/model"
)

// IdentityFields are the identity attributes stamped onto an event.
type IdentityFields struct {
	SessionID string
	UserID    string
	DeviceID  string
	AnonID    string
}

// IdentityProvider supplies identity fields for the current privacy mode.
type IdentityProvider interface {
	Mode() model.Mode
	Fields(now time.Time) IdentityFields
}

// StableIdentity carries a persisted user and device id plus a session id
// generated once per process.
type StableIdentity struct {
	userID    string
	deviceID  string
	sessionID string
}

// NewStableIdentity returns a provider for default mode.
func NewStableIdentity(userID, deviceID string) *StableIdentity {
	return &StableIdentity{userID: userID, deviceID: deviceID, sessionID: uuid.NewString()}
}

// Mode implements IdentityProvider.
func (s *StableIdentity) Mode() model.Mode { return model.ModeDefault }

// Fields implements IdentityProvider.
func (s *StableIdentity) Fields(time.Time) IdentityFields {
	return IdentityFields{SessionID: s.sessionID, UserID: s.userID, DeviceID: s.deviceID}
}

// AnonymousIdentity carries a fresh session id and an anonymous id that
// rotates every UTC day, so events cannot be joined across days.
type AnonymousIdentity struct {
	secret    []byte
	sessionID string
}

// NewAnonymousIdentity returns a provider for privacy mode keyed by secret.
func NewAnonymousIdentity(secret []byte) *AnonymousIdentity {
	return &AnonymousIdentity{secret: secret, sessionID: uuid.NewString()}
}

// Mode implements IdentityProvider.
func (a *AnonymousIdentity) Mode() model.Mode { return model.ModePrivacy }

// Fields implements IdentityProvider.
func (a *AnonymousIdentity) Fields(now time.Time) IdentityFields {
	return IdentityFields{SessionID: a.sessionID, AnonID: AnonID(a.secret, now)}
}

// AnonID derives the anonymous id for the UTC day containing t.
func AnonID(secret []byte, t time.Time) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(t.UTC().Format(time.DateOnly)))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}

// Prefs is the persisted analytics preference record.
type Prefs struct {
	PrivacyMode bool   `json:"privacy_mode"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	AnonSecret  string `json:"anon_secret"`
}

func (p Prefs) secret() []byte {
	b, err := hex.DecodeString(p.AnonSecret)
	if err != nil {
		return []byte(p.AnonSecret)
	}
	return b
}

// complete fills missing ids and the per-install secret. It reports whether
// anything changed.
func (p *Prefs) complete(userID string) (bool, error) {
	changed := false
	if userID != "" && p.UserID != userID {
		p.UserID = userID
		changed = true
	}
	if p.UserID == "" {
		p.UserID = uuid.NewString()
		changed = true
	}
	if p.DeviceID == "" {
		p.DeviceID = uuid.NewString()
		changed = true
	}
	if p.AnonSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return changed, fmt.Errorf("generating anon secret: %w", err)
		}
		p.AnonSecret = hex.EncodeToString(buf)
		changed = true
	}
	return changed, nil
}

func loadPrefs(ctx context.Context, st store.Store) (Prefs, error) {
	records, err := st.Get(ctx, store.KeyAnalyticsPrefs)
	if err != nil {
		return Prefs{}, fmt.Errorf("loading prefs: %w", err)
	}
	prefs, _ := store.DecodeEach[Prefs](records, nil)
	if len(prefs) == 0 {
		return Prefs{}, nil
	}
	return prefs[len(prefs)-1], nil
}

func savePrefs(ctx context.Context, st store.Store, p Prefs) error {
	rec, err := store.Encode(p)
	if err != nil {
		return err
	}
	if err := st.Set(ctx, store.KeyAnalyticsPrefs, []store.Record{rec}); err != nil {
		return fmt.Errorf("saving prefs: %w", err)
	}
	return nil
}

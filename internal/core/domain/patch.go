package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Optional tracks whether a JSON field was present and whether it was null.
// An absent field leaves Set false; `null` sets Set with a nil Value.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a present Optional explicitly set to null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// LicensePatch is a sparse update. Only fields with Set=true are applied.
type LicensePatch struct {
	Owner     Optional[string]    `json:"owner"`
	ExpiresAt Optional[time.Time] `json:"expiresAt"`
	MaxGuilds Optional[int]       `json:"maxGuilds"`
	GuildID   Optional[string]    `json:"guildId"`
	IsActive  Optional[bool]      `json:"isActive"`
	Banned    Optional[bool]      `json:"banned"`
	Notes     Optional[string]    `json:"notes"`
}

// Validate rejects null on non-nullable fields and out-of-range values.
func (p *LicensePatch) Validate() error {
	nonNullable := []struct {
		name    string
		set     bool
		present bool
	}{
		{"owner", p.Owner.Set, p.Owner.Value != nil},
		{"maxGuilds", p.MaxGuilds.Set, p.MaxGuilds.Value != nil},
		{"isActive", p.IsActive.Set, p.IsActive.Value != nil},
		{"banned", p.Banned.Set, p.Banned.Value != nil},
		{"notes", p.Notes.Set, p.Notes.Value != nil},
	}
	for _, f := range nonNullable {
		if f.set && !f.present {
			return fmt.Errorf("%w: %s cannot be null", ErrInvalidInput, f.name)
		}
	}
	if p.Owner.Value != nil && strings.TrimSpace(*p.Owner.Value) == "" {
		return fmt.Errorf("%w: owner cannot be empty", ErrInvalidInput)
	}
	if p.MaxGuilds.Value != nil && *p.MaxGuilds.Value < 1 {
		return fmt.Errorf("%w: maxGuilds must be at least 1", ErrInvalidInput)
	}
	if p.GuildID.Value != nil {
		if err := ValidateGuildID(*p.GuildID.Value); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns the names of the present fields in a fixed order.
func (p *LicensePatch) Fields() []string {
	present := []struct {
		name string
		set  bool
	}{
		{"owner", p.Owner.Set},
		{"expiresAt", p.ExpiresAt.Set},
		{"maxGuilds", p.MaxGuilds.Set},
		{"guildId", p.GuildID.Set},
		{"isActive", p.IsActive.Set},
		{"banned", p.Banned.Set},
		{"notes", p.Notes.Set},
	}
	var fields []string
	for _, f := range present {
		if f.set {
			fields = append(fields, f.name)
		}
	}
	return fields
}

// Apply writes the present fields onto l and returns their names.
// Validate must have succeeded first.
func (p *LicensePatch) Apply(l *License) []string {
	if p.Owner.Set {
		l.Owner = *p.Owner.Value
	}
	if p.ExpiresAt.Set {
		if p.ExpiresAt.Value == nil {
			l.ExpiresAt = nil
		} else {
			t := p.ExpiresAt.Value.UTC()
			l.ExpiresAt = &t
		}
	}
	if p.MaxGuilds.Set {
		l.MaxGuilds = *p.MaxGuilds.Value
	}
	if p.GuildID.Set {
		if p.GuildID.Value == nil {
			l.GuildID = nil
		} else {
			g := *p.GuildID.Value
			l.GuildID = &g
		}
	}
	if p.IsActive.Set {
		l.IsActive = *p.IsActive.Value
	}
	if p.Banned.Set {
		l.Banned = *p.Banned.Value
	}
	if p.Notes.Set {
		l.Notes = *p.Notes.Value
	}
	return p.Fields()
}

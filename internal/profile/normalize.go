package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/civicnet/weeklymatch/internal/database"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

var validate = validator.New()

// Normalize converts a stored row into a well-typed Profile. Loose column shapes (legacy
// location text, a single aim object instead of a list, malformed email) are resolved here.
func Normalize(row database.ProfileRow) (*Profile, error) {
	p := &Profile{
		ID:             strings.TrimSpace(row.ID),
		FullName:       strings.TrimSpace(row.FullName.String),
		Username:       strings.TrimSpace(row.Username.String),
		Email:          strings.TrimSpace(row.Email.String),
		Skills:         NewStringSet(row.Skills...),
		Causes:         NewStringSet(row.Causes...),
		Values:         NewStringSet(row.Values...),
		Tags:           NewStringSet(row.Tags...),
		Bio:            strings.TrimSpace(row.Bio.String),
		Fame:           strings.TrimSpace(row.Fame.String),
		Game:           strings.TrimSpace(row.Game.String),
		WorkStyle:      strings.TrimSpace(row.WorkStyle.String),
		HelpNeeded:     strings.TrimSpace(row.HelpNeeded.String),
		CreatedAt:      row.CreatedAt.UTC(),
		MatchingOptOut: row.MatchingOptOut,
	}
	if row.LastActiveAt.Valid {
		t := row.LastActiveAt.Time.UTC()
		p.LastActiveAt = &t
	}

	if !IsEmail(p.Email) {
		p.Email = ""
	}

	var err error
	if p.Location, err = decodeLocation(row.Location); err != nil {
		return nil, apperrors.NewValidationError("location", fmt.Sprintf("profile %s: %v", p.ID, err))
	}
	if p.Aim, err = decodeAim(row.Aim); err != nil {
		return nil, apperrors.NewValidationError("aim", fmt.Sprintf("profile %s: %v", p.ID, err))
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks struct tags and reports every failing field in one validation error.
func Validate(p *Profile) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return apperrors.NewValidationError("profile", err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return apperrors.NewValidationError(fieldErrs[0].Namespace(), strings.Join(msgs, ", ")).
		WithMetadata("profile_id", p.ID)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Namespace())
	default:
		return fmt.Sprintf("%s is invalid", fe.Namespace())
	}
}

// IsEmail reports whether s is a syntactically valid address.
func IsEmail(s string) bool {
	return s != "" && validate.Var(s, "email") == nil
}

// ResolveEmail picks the address to notify: the email field, else the username when it is an
// address itself. ok is false when neither works.
func ResolveEmail(p *Profile) (string, bool) {
	if IsEmail(p.Email) {
		return p.Email, true
	}
	if username := strings.TrimSpace(p.Username); IsEmail(username) {
		return username, true
	}
	return "", false
}

func decodeLocation(raw database.JSONColumn) (Location, error) {
	if raw.IsNull() {
		return Location{}, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return Location{Text: strings.Join(strings.Fields(text), " ")}, nil
	}

	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Location{}, err
	}
	loc.Text = strings.TrimSpace(loc.Text)
	loc.City = strings.TrimSpace(loc.City)
	loc.Country = strings.TrimSpace(loc.Country)
	return loc, nil
}

func decodeAim(raw database.JSONColumn) ([]Aim, error) {
	if raw.IsNull() {
		return nil, nil
	}

	var aims []Aim
	if err := json.Unmarshal(raw, &aims); err != nil {
		var single Aim
		if err := json.Unmarshal(raw, &single); err == nil {
			aims = []Aim{single}
		} else {
			var title string
			if err := json.Unmarshal(raw, &title); err != nil {
				return nil, fmt.Errorf("expected a list of {title, summary}")
			}
			aims = []Aim{{Title: title}}
		}
	}

	out := aims[:0]
	for _, a := range aims {
		a.Title = strings.TrimSpace(a.Title)
		a.Summary = strings.TrimSpace(a.Summary)
		if a.Title == "" && a.Summary == "" {
			continue
		}
		if a.Title == "" {
			a.Title, a.Summary = a.Summary, ""
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

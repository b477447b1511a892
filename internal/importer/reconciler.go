package importer

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/catdadcode/pdk-data-importer/internal/directory"
	"github.com/catdadcode/pdk-data-importer/internal/mailcheck"
)

// ResultStatus tags the outcome of one row.
type ResultStatus string

const (
	ResultError  ResultStatus = "ERROR"
	ResultCreate ResultStatus = "CREATE"
	ResultUpdate ResultStatus = "UPDATE"
)

// ProcessResult is the typed outcome of reconciling one row: either an
// error with its combined message, or a create/update with the number of
// invitations issued.
type ProcessResult struct {
	Status  ResultStatus
	Invites int
	Error   string
}

// DomainChecker is the slice of the mailcheck contract the reconciler
// consumes. Lookups are network-bound and may fail or time out; failures
// are folded into the row's validation outcome, never retried.
type DomainChecker interface {
	IsDisposable(domain string) bool
	Check(ctx context.Context, domain string) error
}

// emailShape is the basic local@domain.tld test applied before any DNS
// work. Deliberately loose; the DNS checks do the real verification.
var emailShape = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// maxPin is the largest accepted pin value. Compared with math/big so long
// numeric identifiers never lose precision to floating point.
var maxPin = big.NewInt(9_999_999_999)

// Reconciler executes the per-row algorithm: validate, find-or-create the
// person, diff credentials and group memberships, and return a typed
// outcome. It holds no per-row state and is safe for concurrent use.
type Reconciler struct {
	repo directory.Repository
	mail DomainChecker
}

// NewReconciler creates a Reconciler over the given directory store and
// domain checker.
func NewReconciler(repo directory.Repository, mail DomainChecker) *Reconciler {
	return &Reconciler{repo: repo, mail: mail}
}

// Reconcile validates row and, if it passes, drives the directory to the
// row's desired state. Validation failures accumulate into one combined
// error message and cause zero directory mutations for the row. Errors
// never propagate past the row boundary: store failures mid-reconciliation
// also come back as an ERROR result.
func (r *Reconciler) Reconcile(ctx context.Context, fileName string, row Row) ProcessResult {
	// Resolve the row's target up front: validation needs it to tell a
	// benign self-match apart from a genuine name collision.
	target, err := r.repo.FindPerson(ctx, row.PersonID, row.Email)
	if err != nil {
		return ProcessResult{Status: ResultError, Error: rowErrorMessage(fileName, []string{err.Error()})}
	}

	if errs := r.validate(ctx, row, target); len(errs) > 0 {
		return ProcessResult{Status: ResultError, Error: rowErrorMessage(fileName, errs)}
	}

	result, err := r.apply(ctx, row, target)
	if err != nil {
		return ProcessResult{Status: ResultError, Error: rowErrorMessage(fileName, []string{err.Error()})}
	}

	slog.Debug("row reconciled",
		"file", fileName,
		"status", string(result.Status),
		"invites", result.Invites,
	)
	return result
}

// validate runs every check and accumulates failures; it never
// short-circuits except within the email checks, where a missing domain
// part makes the remaining domain checks meaningless.
func (r *Reconciler) validate(ctx context.Context, row Row, target *directory.Person) []string {
	var errs []string

	if row.First == "" || len(row.First) > 50 || row.Last == "" || len(row.Last) > 50 {
		errs = append(errs, msgInvalidName)
	}

	if row.Email != "" && !emailShape.MatchString(row.Email) {
		errs = append(errs, msgInvalidEmail)
	}

	_, domain, found := strings.Cut(row.Email, "@")
	if !found || domain == "" {
		errs = append(errs, msgInvalidEmailFormat)
	} else {
		if r.mail.IsDisposable(domain) {
			errs = append(errs, msgDisposableEmail)
		}
		if err := r.mail.Check(ctx, domain); err != nil {
			switch {
			case errors.Is(err, mailcheck.ErrNoSuchDomain):
				errs = append(errs, msgDomainNotFound)
			case errors.Is(err, mailcheck.ErrNoMailExchange):
				errs = append(errs, msgNoMailExchange)
			default:
				errs = append(errs, msgDomainVerifyFailed)
			}
		}
	}

	if pinTooLarge(row.Pin) || pinTooLarge(row.PinDuress) {
		errs = append(errs, msgPinTooLarge)
	}

	if row.Email == "" && (row.Bluetooth > 0 || row.Mobile > 0) {
		errs = append(errs, msgCredentialNeedsEmail)
	}

	// A (first, last) collision with a different person is a hard error;
	// matching the person this row updates is fine.
	sameName, err := r.repo.FindPersonsByName(ctx, row.First, row.Last)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		for _, p := range sameName {
			if target == nil || p.ID != target.ID {
				errs = append(errs, nameConflictMessage(row.First, row.Last))
				break
			}
		}
	}

	return errs
}

// apply drives the directory to the row's desired state. target is the
// person matched by id or email, or nil when the row creates a new one.
func (r *Reconciler) apply(ctx context.Context, row Row, target *directory.Person) (ProcessResult, error) {
	status := ResultUpdate
	custom := row.customFields()

	person := target
	if person == nil {
		status = ResultCreate
		created, err := r.repo.CreatePerson(ctx, &directory.Person{
			ID:         row.PersonID,
			First:      row.First,
			Last:       row.Last,
			Email:      row.Email,
			Enabled:    row.Enabled,
			Pin:        row.Pin,
			PinDuress:  row.PinDuress,
			ActiveDate: row.ActiveDate,
			ExpireDate: row.ExpireDate,
			Metadata:   custom,
		})
		if err != nil {
			return ProcessResult{}, err
		}
		person = created
	} else {
		person.First = row.First
		person.Last = row.Last
		person.Email = row.Email
		person.Enabled = row.Enabled
		person.Pin = row.Pin
		person.PinDuress = row.PinDuress
		person.ActiveDate = row.ActiveDate
		person.ExpireDate = row.ExpireDate

		// Non-destructive metadata merge: keys absent from this row's
		// custom.* columns survive.
		if person.Metadata == nil {
			person.Metadata = make(map[string]string)
		}
		for k, v := range custom {
			person.Metadata[k] = v
		}

		if err := r.repo.UpdatePerson(ctx, person); err != nil {
			return ProcessResult{}, err
		}
	}

	invites, err := r.syncCredentials(ctx, person, row)
	if err != nil {
		return ProcessResult{}, err
	}

	if err := r.syncGroups(ctx, person, row); err != nil {
		return ProcessResult{}, err
	}

	return ProcessResult{Status: status, Invites: invites}, nil
}

// syncCredentials applies the asymmetric credential policy: cards are
// additive-only by value, while bluetooth and mobile counts are driven
// toward the requested target by creation or (on zero) full deletion.
func (r *Reconciler) syncCredentials(ctx context.Context, person *directory.Person, row Row) (int, error) {
	// Cards: create any value not already held. Existing cards absent
	// from the new list are never removed.
	for _, card := range splitList(row.Cards) {
		if person.HasCard(card) {
			continue
		}
		if _, err := r.repo.CreateCredential(ctx, person.ID, directory.CredentialCard, card); err != nil {
			return 0, err
		}
	}

	invites := 0
	for _, want := range []struct {
		kind   directory.CredentialType
		target int
	}{
		{directory.CredentialBluetooth, row.Bluetooth},
		{directory.CredentialMobile, row.Mobile},
	} {
		existing := person.CredentialsOfType(want.kind)

		if want.target == 0 {
			if len(existing) == 0 {
				continue
			}
			ids := make([]string, len(existing))
			for i, c := range existing {
				ids[i] = c.ID
			}
			if err := r.repo.DeleteCredentials(ctx, ids); err != nil {
				return invites, err
			}
			continue
		}

		// Only the deficit is created; a surplus above a nonzero target
		// is left untouched.
		for i := len(existing); i < want.target; i++ {
			if _, err := r.repo.CreateCredential(ctx, person.ID, want.kind, ""); err != nil {
				return invites, err
			}
			invites++
		}
	}

	return invites, nil
}

// syncGroups creates any group named in the row that does not yet exist,
// along with a membership for this person. Existing groups are left
// entirely alone and memberships are never removed.
func (r *Reconciler) syncGroups(ctx context.Context, person *directory.Person, row Row) error {
	names := splitList(row.Groups)
	if len(names) == 0 {
		return nil
	}

	existing, err := r.repo.FindGroupsByName(ctx, names)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, g := range existing {
		known[g.Name] = true
	}

	for _, name := range names {
		if known[name] {
			continue
		}
		group, err := r.repo.CreateGroup(ctx, name)
		if err != nil {
			return err
		}
		if err := r.repo.CreateMembership(ctx, group.ID, person.ID); err != nil {
			return err
		}
	}
	return nil
}

// pinTooLarge reports whether s is a pin that cannot be accepted: present
// but non-numeric, or numerically above maxPin.
func pinTooLarge(s string) bool {
	if s == "" {
		return false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return true
	}
	return v.Cmp(maxPin) > 0
}

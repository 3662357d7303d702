package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle is the recurrence basis of a cost item. The zero value is not a
// valid cycle; values only come from the constants below or ParseBillingCycle.
type BillingCycle uint8

const (
	Monthly BillingCycle = iota + 1
	Yearly
)

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus uint8

const (
	InvoiceOpen InvoiceStatus = iota + 1
	InvoicePaid
)

type OrganizationType uint8

const (
	OrganizationPersonal OrganizationType = iota + 1
	OrganizationBusiness
)

type MemberRole uint8

const (
	RoleOwner MemberRole = iota + 1
	RoleAdmin
	RoleMember
)

// DefaultCurrency is used when a row carries no currency code.
const DefaultCurrency = "EUR"

type (
	Date struct {
		time.Time
	}

	CostItem struct {
		ID             uuid.UUID
		OrganizationID uuid.UUID
		Name           string
		Category       string
		Amount         decimal.Decimal
		Currency       string
		Cycle          BillingCycle
		HasBinding     bool
		BindingEndsAt  Date // zero when HasBinding is false
		PaymentMethod  string
		Notes          string
		Tags           []string
	}

	Invoice struct {
		ID             uuid.UUID
		OrganizationID uuid.UUID
		Vendor         string
		Amount         decimal.Decimal
		Currency       string
		DueAt          Date
		Status         InvoiceStatus
		Category       string
		Notes          string
	}

	Organization struct {
		ID      uuid.UUID
		Name    string
		Type    OrganizationType
		OwnerID uuid.UUID
	}

	Membership struct {
		UserID         uuid.UUID
		OrganizationID uuid.UUID
		Role           MemberRole
	}

	// Contact is a member resolved to a deliverable address.
	Contact struct {
		UserID      uuid.UUID
		Email       string
		DisplayName string
	}
)

var (
	ErrInvalidBillingCycle  = errors.New("invalid billing cycle")
	ErrInvalidInvoiceStatus = errors.New("invalid invoice status")
	ErrInvalidOrgType       = errors.New("invalid organization type")
	ErrInvalidRole          = errors.New("invalid member role")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCurrency      = errors.New("invalid currency code")
	ErrEmptyName            = errors.New("empty name")
	ErrEmptyVendor          = errors.New("empty vendor")
	ErrMissingBindingEnd    = errors.New("binding end date required when binding is set")
	ErrUnexpectedBindingEnd = errors.New("binding end date set without binding")
	ErrMissingDueDate       = errors.New("due date required")
	ErrMissingOrganization  = errors.New("organization id required")
)

const maxTextLength = 200

// ParseBillingCycle converts the storage representation ("Monthly", "Yearly",
// any case) into a BillingCycle.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return Monthly, nil
	case "yearly":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, s)
	}
}

func (c BillingCycle) String() string {
	switch c {
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	default:
		return fmt.Sprintf("BillingCycle(%d)", uint8(c))
	}
}

// ParseInvoiceStatus converts "Open"/"Paid" (any case) into an InvoiceStatus.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return InvoiceOpen, nil
	case "paid":
		return InvoicePaid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidInvoiceStatus, s)
	}
}

func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceOpen:
		return "Open"
	case InvoicePaid:
		return "Paid"
	default:
		return fmt.Sprintf("InvoiceStatus(%d)", uint8(s))
	}
}

func ParseOrganizationType(s string) (OrganizationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "personal":
		return OrganizationPersonal, nil
	case "business":
		return OrganizationBusiness, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrgType, s)
	}
}

func (t OrganizationType) String() string {
	switch t {
	case OrganizationPersonal:
		return "Personal"
	case OrganizationBusiness:
		return "Business"
	default:
		return fmt.Sprintf("OrganizationType(%d)", uint8(t))
	}
}

func ParseMemberRole(s string) (MemberRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return RoleOwner, nil
	case "admin":
		return RoleAdmin, nil
	case "member":
		return RoleMember, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r MemberRole) String() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleMember:
		return "Member"
	default:
		return fmt.Sprintf("MemberRole(%d)", uint8(r))
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty reports whether the date is unset.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the calendar date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(DateOf(other.Time).Sub(DateOf(d.Time).Time).Hours() / 24)
}

// Compare returns -1, 0 or +1 comparing calendar dates.
func (d Date) Compare(other Date) int {
	return DateOf(d.Time).Time.Compare(DateOf(other.Time).Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(time.DateOnly)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON shadows time.Time's RFC 3339 encoding with YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	return d.UnmarshalText([]byte(s))
}

func validateText(s string, empty error) error {
	if strings.TrimSpace(s) == "" {
		return empty
	}
	if len(s) > maxTextLength {
		return fmt.Errorf("text too long (max %d characters)", maxTextLength)
	}
	return nil
}

func validateCurrency(c string) error {
	if len(c) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

func (c CostItem) Validate() error {
	if c.OrganizationID == uuid.Nil {
		return ErrMissingOrganization
	}
	if err := validateText(c.Name, ErrEmptyName); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateCurrency(c.Currency); err != nil {
		return err
	}
	switch c.Cycle {
	case Monthly, Yearly:
	default:
		return ErrInvalidBillingCycle
	}
	if c.HasBinding && c.BindingEndsAt.IsEmpty() {
		return ErrMissingBindingEnd
	}
	if !c.HasBinding && !c.BindingEndsAt.IsEmpty() {
		return ErrUnexpectedBindingEnd
	}
	return nil
}

func (i Invoice) Validate() error {
	if i.OrganizationID == uuid.Nil {
		return ErrMissingOrganization
	}
	if err := validateText(i.Vendor, ErrEmptyVendor); err != nil {
		return err
	}
	if !i.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateCurrency(i.Currency); err != nil {
		return err
	}
	if i.DueAt.IsEmpty() {
		return ErrMissingDueDate
	}
	switch i.Status {
	case InvoiceOpen, InvoicePaid:
	default:
		return ErrInvalidInvoiceStatus
	}
	return nil
}

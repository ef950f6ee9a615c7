package tool

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

type Format string

const (
	FormatDate     Format = "date"
	FormatDateTime Format = "date-time"
	FormatPhone    Format = "phone"
)

const (
	dateLayout          = "2006-01-02"
	localDateTimeLayout = "2006-01-02T15:04"
)

var (
	kenyanMobilePattern = regexp.MustCompile(`^(\+254|0)[17]\d{8}$`)
	dateTimeSecondsPart = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
)

// Param declares one argument. The same tree feeds the model-facing schema and
// the boundary validator.
type Param struct {
	Type     schema.DataType
	Desc     string
	Required bool
	Enum     []string
	Min      *float64
	Max      *float64
	Format   Format
	Fields   map[string]*Param
	Items    *Param
}

func bound(v float64) *float64 {
	return &v
}

// ToParameterInfo converts the declaration into eino's schema model. Bounds and
// formats are folded into the description since ParameterInfo has no fields for them.
func (p *Param) ToParameterInfo() *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     p.Type,
		Desc:     p.describe(),
		Enum:     slices.Clone(p.Enum),
		Required: p.Required,
	}
	if p.Items != nil {
		info.ElemInfo = p.Items.ToParameterInfo()
	}
	if len(p.Fields) > 0 {
		info.SubParams = make(map[string]*schema.ParameterInfo, len(p.Fields))
		for name, field := range p.Fields {
			info.SubParams[name] = field.ToParameterInfo()
		}
	}
	return info
}

func (p *Param) describe() string {
	var hints []string
	switch p.Format {
	case FormatDate:
		hints = append(hints, "format YYYY-MM-DD")
	case FormatDateTime:
		hints = append(hints, "format YYYY-MM-DDTHH:MM in East Africa Time or RFC 3339")
	case FormatPhone:
		hints = append(hints, "Kenyan mobile number such as +254712345678 or 0712345678")
	}
	if p.Min != nil && p.Max != nil {
		hints = append(hints, fmt.Sprintf("between %g and %g", *p.Min, *p.Max))
	} else if p.Min != nil {
		hints = append(hints, fmt.Sprintf("at least %g", *p.Min))
	} else if p.Max != nil {
		hints = append(hints, fmt.Sprintf("at most %g", *p.Max))
	}
	if len(hints) == 0 {
		return p.Desc
	}
	return fmt.Sprintf("%s (%s)", p.Desc, strings.Join(hints, ", "))
}

// validateArgs checks args against params and collects every violation.
func validateArgs(params map[string]*Param, args map[string]any) []contractx.FieldError {
	return validateObject("", params, args)
}

func validateObject(prefix string, fields map[string]*Param, obj map[string]any) []contractx.FieldError {
	var errs []contractx.FieldError

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := fields[name]
		path := joinPath(prefix, name)
		v, ok := obj[name]
		if !ok || v == nil {
			if p.Required {
				errs = append(errs, contractx.FieldError{Field: path, Message: "is required"})
			}
			continue
		}
		errs = append(errs, validateValue(path, p, v)...)
	}

	unknown := make([]string, 0)
	for name := range obj {
		if _, ok := fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, contractx.FieldError{Field: joinPath(prefix, name), Message: "is not a recognised field"})
	}
	return errs
}

func validateValue(path string, p *Param, v any) []contractx.FieldError {
	fail := func(msg string) []contractx.FieldError {
		return []contractx.FieldError{{Field: path, Message: msg}}
	}

	switch p.Type {
	case schema.String:
		s, ok := v.(string)
		if !ok {
			return fail("must be a string")
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return fail("must not be empty")
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return fail(fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")))
		}
		if s != "" {
			if msg := checkFormat(p.Format, s); msg != "" {
				return fail(msg)
			}
		}
	case schema.Integer, schema.Number:
		n, ok := v.(float64)
		if !ok {
			return fail("must be a number")
		}
		if p.Type == schema.Integer && n != math.Trunc(n) {
			return fail("must be a whole number")
		}
		if p.Min != nil && n < *p.Min {
			return fail(fmt.Sprintf("must be at least %g", *p.Min))
		}
		if p.Max != nil && n > *p.Max {
			return fail(fmt.Sprintf("must be at most %g", *p.Max))
		}
	case schema.Boolean:
		if _, ok := v.(bool); !ok {
			return fail("must be true or false")
		}
	case schema.Object:
		obj, ok := v.(map[string]any)
		if !ok {
			return fail("must be an object")
		}
		if p.Fields == nil {
			return nil
		}
		return validateObject(path, p.Fields, obj)
	case schema.Array:
		items, ok := v.([]any)
		if !ok {
			return fail("must be a list")
		}
		if p.Items == nil {
			return nil
		}
		var errs []contractx.FieldError
		for i, item := range items {
			errs = append(errs, validateValue(fmt.Sprintf("%s[%d]", path, i), p.Items, item)...)
		}
		return errs
	}
	return nil
}

func checkFormat(f Format, s string) string {
	switch f {
	case FormatDate:
		if _, err := time.Parse(dateLayout, s); err != nil {
			return "must be a date in YYYY-MM-DD form"
		}
	case FormatDateTime:
		if _, err := parseDateTime(s, time.UTC); err != nil {
			return "must be a date and time in YYYY-MM-DDTHH:MM form"
		}
	case FormatPhone:
		if !kenyanMobilePattern.MatchString(compactPhone(s)) {
			return "must be a Kenyan mobile number such as +254712345678"
		}
	}
	return ""
}

// parseDateTime accepts RFC 3339 or a zone-less local time interpreted in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if dateTimeSecondsPart.MatchString(s) {
		return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
	}
	return time.ParseInLocation(localDateTimeLayout, s, loc)
}

func compactPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}

// normalizePhone rewrites a valid Kenyan mobile number to +254 form.
func normalizePhone(s string) string {
	c := compactPhone(s)
	if strings.HasPrefix(c, "0") {
		return "+254" + c[1:]
	}
	return c
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

package apikey

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrorKind classifies a rejected key
type ErrorKind string

const (
	KindMalformed      ErrorKind = "MALFORMED"
	KindRegionMismatch ErrorKind = "REGION_MISMATCH"
	KindInvalidKey     ErrorKind = "INVALID_KEY"
)

var (
	ErrMalformed      = errors.New("malformed api key")
	ErrRegionMismatch = errors.New("api key region mismatch")
	ErrInvalidKey     = errors.New("unknown api key")
)

// Result is the outcome of validating one key
type Result struct {
	Valid     bool      `json:"valid"`
	Region    string    `json:"region,omitempty"` // region prefix parsed from the key
	ErrorKind ErrorKind `json:"error_code,omitempty"`
	Message   string    `json:"message"`
}

// Err returns the sentinel matching the result, nil when valid
func (r Result) Err() error {
	switch r.ErrorKind {
	case "":
		return nil
	case KindMalformed:
		return ErrMalformed
	case KindRegionMismatch:
		return ErrRegionMismatch
	default:
		return ErrInvalidKey
	}
}

// Stats are the usage counters of a Validator
type Stats struct {
	CollectorRegion string              `json:"collector_region"`
	AllowlistSize   int                 `json:"allowlist_size"`
	Total           int64               `json:"total_validations"`
	Valid           int64               `json:"valid"`
	Rejected        map[ErrorKind]int64 `json:"rejected"`
	LastValidation  time.Time           `json:"last_validation,omitempty"`
	KeyFormat       string              `json:"api_key_format"`
}

// Validator checks field-station keys of the form <region>.<secret> against the collector's region
type Validator struct {
	region    string
	allowlist map[string]struct{}
	now       func() time.Time

	mu       sync.Mutex
	total    int64
	valid    int64
	rejected map[ErrorKind]int64
	last     time.Time
}

func NewValidator(collectorRegion string, keys []string) *Validator {
	allowlist := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowlist[k] = struct{}{}
		}
	}
	return &Validator{
		region:    strings.ToLower(strings.TrimSpace(collectorRegion)),
		allowlist: allowlist,
		now:       time.Now,
		rejected:  make(map[ErrorKind]int64),
	}
}

// Region returns the region this collector accepts submissions for
func (v *Validator) Region() string {
	return v.region
}

// KeyFormat describes the expected key layout
func (v *Validator) KeyFormat() string {
	return v.region + ".{random_string}"
}

// Validate classifies a key. Well-formedness is checked before the region.
func (v *Validator) Validate(key string) Result {
	result := v.classify(key)

	v.mu.Lock()
	v.total++
	if result.Valid {
		v.valid++
	} else {
		v.rejected[result.ErrorKind]++
	}
	v.last = v.now()
	v.mu.Unlock()

	return result
}

func (v *Validator) classify(key string) Result {
	prefix, suffix, ok := Split(key)
	if !ok {
		return Result{
			ErrorKind: KindMalformed,
			Message:   "API key must have the form <region>.<secret>",
		}
	}

	if v.region == "" || !strings.EqualFold(prefix, v.region) {
		return Result{
			Region:    strings.ToLower(prefix),
			ErrorKind: KindRegionMismatch,
			Message:   "API key region '" + prefix + "' does not match collector region '" + v.region + "'",
		}
	}

	if len(v.allowlist) > 0 {
		if _, known := v.allowlist[prefix+"."+suffix]; !known {
			return Result{
				Region:    strings.ToLower(prefix),
				ErrorKind: KindInvalidKey,
				Message:   "API key is not recognised",
			}
		}
	}

	return Result{
		Valid:   true,
		Region:  strings.ToLower(prefix),
		Message: "API key is valid",
	}
}

// Split parses <prefix>.<suffix>. Both parts must be non-empty and use only letters,
// digits, '-' or '_'.
func Split(key string) (prefix, suffix string, ok bool) {
	key = strings.TrimSpace(key)
	prefix, suffix, found := strings.Cut(key, ".")
	if !found || prefix == "" || suffix == "" {
		return "", "", false
	}
	if !validChars(prefix) || !validChars(suffix) {
		return "", "", false
	}
	return prefix, suffix, true
}

func validChars(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Stats returns a copy of the usage counters
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	rejected := make(map[ErrorKind]int64, len(v.rejected))
	for k, n := range v.rejected {
		rejected[k] = n
	}
	return Stats{
		CollectorRegion: v.region,
		AllowlistSize:   len(v.allowlist),
		Total:           v.total,
		Valid:           v.valid,
		Rejected:        rejected,
		LastValidation:  v.last,
		KeyFormat:       v.KeyFormat(),
	}
}

// Mask hides the secret part of a key for logging
func Mask(key string) string {
	prefix, suffix, ok := Split(key)
	if !ok {
		return "***"
	}
	if len(suffix) <= 4 {
		return prefix + ".***"
	}
	return prefix + "." + suffix[:4] + "***"
}

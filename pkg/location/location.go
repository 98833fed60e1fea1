// Package location implements the transfer location grammar. A location is
// either an S3 path of the form s3://bucket/key or an on-prem share path of
// the form <IPv4 address>/<share>/<path>. Strings are parsed once at the
// boundary into a tagged Location; downstream code switches on the variant
// instead of re-splitting strings.
package location

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kanisterio/errkit"
)

// S3Prefix is the scheme marker that identifies an S3 location.
const S3Prefix = "s3://"

// ErrInvalidLocation indicates a string that matches neither recognized
// location form.
var ErrInvalidLocation = errkit.NewSentinelErr("invalid transfer location")

// Kind discriminates the two supported location families.
type Kind string

const (
	// KindS3 is an object-store location.
	KindS3 Kind = "s3"
	// KindOnPrem is an on-premises SMB share location.
	KindOnPrem Kind = "on-prem"
)

// Location is a parsed transfer endpoint. Exactly one of the two concrete
// variants implements it.
type Location interface {
	fmt.Stringer
	Kind() Kind
}

// S3Location points at an object in a bucket.
type S3Location struct {
	Bucket string
	Key    string
}

var _ Location = S3Location{}

func (l S3Location) Kind() Kind {
	return KindS3
}

func (l S3Location) String() string {
	if l.Key == "" {
		return S3Prefix + l.Bucket
	}
	return S3Prefix + l.Bucket + "/" + l.Key
}

// OnPremLocation points at a file on a network share.
type OnPremLocation struct {
	// Address is the dotted-decimal IPv4 address of the file server.
	Address string
	// Share is the root share name on the server.
	Share string
	// Path is the path below the share root. May be empty for a directory
	// transfer rooted at the share.
	Path string
}

var _ Location = OnPremLocation{}

func (l OnPremLocation) Kind() Kind {
	return KindOnPrem
}

func (l OnPremLocation) String() string {
	if l.Path == "" {
		return l.Address + "/" + l.Share
	}
	return l.Address + "/" + l.Share + "/" + l.Path
}

// UNCPath returns the //server/share form used in cifs mount entries.
func (l OnPremLocation) UNCPath() string {
	return "//" + l.String()
}

// Base returns the final path element, typically the file name.
func (l OnPremLocation) Base() string {
	if i := strings.LastIndex(l.Path, "/"); i >= 0 {
		return l.Path[i+1:]
	}
	return l.Path
}

// Parse converts a raw location string into its tagged variant. It returns
// an error wrapping ErrInvalidLocation when the string matches neither form.
func Parse(s string) (Location, error) {
	if strings.Contains(s, S3Prefix) {
		return parseS3(s), nil
	}
	parts := strings.SplitN(s, "/", 3)
	if !isIPv4(parts[0]) {
		return nil, errkit.Wrap(ErrInvalidLocation, "location is neither an s3 path nor an on-prem share", "location", s)
	}
	// An address with no share root is not a usable location.
	if len(parts) < 2 || parts[1] == "" {
		return nil, errkit.Wrap(ErrInvalidLocation, "on-prem location is missing a share root", "location", s)
	}
	l := OnPremLocation{Address: parts[0], Share: parts[1]}
	if len(parts) == 3 {
		l.Path = parts[2]
	}
	return l, nil
}

// Classify returns only the kind of a raw location string.
func Classify(s string) (Kind, error) {
	l, err := Parse(s)
	if err != nil {
		return "", err
	}
	return l.Kind(), nil
}

func parseS3(s string) S3Location {
	trimmed := s[strings.Index(s, S3Prefix)+len(S3Prefix):]
	parts := strings.SplitN(trimmed, "/", 2)
	l := S3Location{Bucket: parts[0]}
	if len(parts) == 2 {
		l.Key = parts[1]
	}
	return l
}

// isIPv4 reports whether s is a strict dotted-decimal IPv4 address with each
// octet in [0, 255]. Hostnames and IPv6 are not supported.
func isIPv4(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		if o == "" || len(o) > 3 {
			return false
		}
		// Reject non-digit characters that Atoi would otherwise accept,
		// such as a leading "+".
		for _, r := range o {
			if r < '0' || r > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(o)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

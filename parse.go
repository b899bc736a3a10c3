package ocfl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ocflkit/ocflkit/digest"
)

// ParseMode selects how ParseInventory handles malformed input: ModeStrict
// stops at the first problem it finds, matching what object-store reads
// need day to day; ModeValidating instead collects every diagnostic it can
// before giving up, for the validator (spec.md §4.1 "strict vs validating
// parse", §4.6 "per-object validation procedure").
type ParseMode int

const (
	ModeStrict ParseMode = iota
	ModeValidating
)

// ParseResult is what ParseInventory returns: the best-effort Inventory it
// managed to build, plus every Diagnostic collected along the way.
// ParseInventory returns no ParseResult, only an error, when the bytes are
// not a JSON object and, in ModeStrict, at the first error, so a
// ParseResult from ModeStrict never holds an error Diagnostic.
type ParseResult struct {
	Inventory *Inventory
	Errors    []Diagnostic
	Warnings  []Diagnostic
}

// Fatal reports whether any collected diagnostic should fail validation.
func (r *ParseResult) Fatal() bool { return len(r.Errors) > 0 }

var uriSchemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

func looksLikeURI(s string) bool { return uriSchemePattern.MatchString(s) }

type parser struct {
	mode ParseMode
	res  ParseResult
}

// fail records a diagnostic. In ModeStrict it returns a non-nil error that
// the caller must propagate immediately; in ModeValidating it returns nil
// so the caller keeps going on a best-effort basis.
func (p *parser) fail(c Code, format string, args ...any) error {
	d := Diagnostic{Code: c, Message: fmt.Sprintf(format, args...)}
	p.res.Errors = append(p.res.Errors, d)
	if p.mode == ModeStrict {
		return fmt.Errorf("%w: %w", ErrInvalidValue, d)
	}
	return nil
}

func (p *parser) warn(c Code, format string, args ...any) {
	p.res.Warnings = append(p.res.Warnings, Diagnostic{Code: c, Message: fmt.Sprintf(format, args...)})
}

// decodeObject decodes a JSON object into a map of raw values while
// detecting duplicate keys. Plain encoding/json unmarshaling into a map or
// struct silently keeps the last occurrence of a duplicate key; OCFL
// requires flagging it (E033), so the token stream has to be walked by
// hand.
func decodeObject(data []byte) (map[string]json.RawMessage, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}
	out := make(map[string]json.RawMessage)
	var dups []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected a string key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("decoding value for %q: %w", key, err)
		}
		if _, exists := out[key]; exists {
			dups = append(dups, key)
		}
		out[key] = raw
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, nil, err
	}
	return out, dups, nil
}

// ParseInventory parses an inventory.json body into an Inventory, checking
// every invariant named in spec.md §4.1. See ParseMode for how the two
// modes differ in failure behavior.
func ParseInventory(data []byte, mode ParseMode) (*ParseResult, error) {
	p := &parser{mode: mode}
	top, dups, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed inventory JSON: %w", ErrInvalidValue, err)
	}
	for _, k := range dups {
		if err := p.fail(E033, "duplicate top-level key %q", k); err != nil {
			return nil, err
		}
	}

	inv := &Inventory{Versions: map[VNum]*Version{}, Fixity: map[string]DigestMap{}}
	knownTop := map[string]bool{
		"id": true, "type": true, "digestAlgorithm": true, "head": true,
		"contentDirectory": true, "manifest": true, "versions": true, "fixity": true,
	}
	for k := range top {
		if !knownTop[k] {
			p.warn(W000, "unrecognized inventory field %q", k)
		}
	}

	if raw, ok := top["id"]; ok {
		if err := json.Unmarshal(raw, &inv.ID); err != nil || inv.ID == "" {
			if err := p.fail(E038, "id must be a non-empty string"); err != nil {
				return nil, err
			}
		} else if !looksLikeURI(inv.ID) {
			p.warn(W005, "id %q should be a URI", inv.ID)
		}
	} else if err := p.fail(E038, "missing required field \"id\""); err != nil {
		return nil, err
	}

	if raw, ok := top["type"]; ok {
		var typeURI string
		if err := json.Unmarshal(raw, &typeURI); err != nil {
			if err := p.fail(E038, "type must be a string"); err != nil {
				return nil, err
			}
		} else if s, ok := ParseInventoryType(typeURI); ok {
			inv.Type = s
		} else if err := p.fail(E038, "unrecognized inventory type %q", typeURI); err != nil {
			return nil, err
		}
	} else if err := p.fail(E038, "missing required field \"type\""); err != nil {
		return nil, err
	}

	if raw, ok := top["digestAlgorithm"]; ok {
		if err := json.Unmarshal(raw, &inv.DigestAlgorithm); err != nil {
			if err := p.fail(E025, "digestAlgorithm must be a string"); err != nil {
				return nil, err
			}
		} else {
			switch inv.DigestAlgorithm {
			case "sha512":
			case "sha256":
				p.warn(W004, "digestAlgorithm sha256 is permitted but deprecated; sha512 is preferred")
			default:
				if err := p.fail(E025, "digestAlgorithm must be sha512 or sha256, got %q", inv.DigestAlgorithm); err != nil {
					return nil, err
				}
			}
		}
	} else if err := p.fail(E025, "missing required field \"digestAlgorithm\""); err != nil {
		return nil, err
	}

	var headStr string
	if raw, ok := top["head"]; ok {
		if err := json.Unmarshal(raw, &headStr); err != nil {
			if err := p.fail(E040, "head must be a string"); err != nil {
				return nil, err
			}
		} else if v, err := ParseVNum(headStr); err != nil {
			if err := p.fail(E040, "head: %v", err); err != nil {
				return nil, err
			}
		} else {
			inv.Head = v
		}
	} else if err := p.fail(E040, "missing required field \"head\""); err != nil {
		return nil, err
	}

	if raw, ok := top["contentDirectory"]; ok {
		if err := json.Unmarshal(raw, &inv.ContentDirectory); err != nil {
			if err := p.fail(E017, "contentDirectory must be a string"); err != nil {
				return nil, err
			}
		}
	}

	if raw, ok := top["manifest"]; ok {
		m, err := parseDigestMap(p, raw, E099, E100)
		if err != nil {
			return nil, err
		}
		inv.Manifest = m
	} else if err := p.fail(E050, "missing required field \"manifest\""); err != nil {
		return nil, err
	}

	if raw, ok := top["versions"]; ok {
		vtop, vdups, err := decodeObject(raw)
		if err != nil {
			if err := p.fail(E010, "versions: %v", err); err != nil {
				return nil, err
			}
		}
		for _, k := range vdups {
			if err := p.fail(E033, "duplicate version key %q", k); err != nil {
				return nil, err
			}
		}
		for vkey, vraw := range vtop {
			vn, err := ParseVNum(vkey)
			if err != nil {
				if err := p.fail(E010, "invalid version directory name %q: %v", vkey, err); err != nil {
					return nil, err
				}
				continue
			}
			v, err := parseVersion(p, vraw)
			if err != nil {
				return nil, err
			}
			if v != nil {
				inv.Versions[vn] = v
			}
		}
	} else if err := p.fail(E010, "missing required field \"versions\""); err != nil {
		return nil, err
	}

	if raw, ok := top["fixity"]; ok {
		ftop, fdups, err := decodeObject(raw)
		if err != nil {
			if err := p.fail(E093, "fixity: %v", err); err != nil {
				return nil, err
			}
		}
		for _, k := range fdups {
			if err := p.fail(E033, "duplicate fixity algorithm %q", k); err != nil {
				return nil, err
			}
		}
		for alg, araw := range ftop {
			m, err := parseDigestMap(p, araw, E093, E093)
			if err != nil {
				return nil, err
			}
			inv.Fixity[alg] = m
		}
	}

	if err := inv.Valid(); err != nil {
		if perr := p.fail(E001, "%v", err); perr != nil {
			return nil, perr
		}
	}

	p.res.Inventory = inv
	return &p.res, nil
}

// parseDigestMap decodes a JSON object shaped like OCFL's manifest/fixity
// maps: digest -> array of paths, normalizing digest case and flagging
// duplicate digest keys and malformed path lists with dupCode/typeCode.
func parseDigestMap(p *parser, raw json.RawMessage, dupCode, typeCode Code) (DigestMap, error) {
	obj, dups, err := decodeObject(raw)
	if err != nil {
		if perr := p.fail(typeCode, "expected an object: %v", err); perr != nil {
			return nil, perr
		}
		return DigestMap{}, nil
	}
	for _, k := range dups {
		if perr := p.fail(dupCode, "duplicate digest key %q", k); perr != nil {
			return nil, perr
		}
	}
	dm := make(DigestMap, len(obj))
	for digestKey, pathsRaw := range obj {
		var paths []string
		if err := json.Unmarshal(pathsRaw, &paths); err != nil {
			if perr := p.fail(typeCode, "digest %q: expected an array of paths: %v", digestKey, err); perr != nil {
				return nil, perr
			}
			continue
		}
		dm[digest.Normalize(digestKey)] = paths
	}
	return dm, nil
}

func parseVersion(p *parser, raw json.RawMessage) (*Version, error) {
	obj, dups, err := decodeObject(raw)
	if err != nil {
		if perr := p.fail(E010, "version object: %v", err); perr != nil {
			return nil, perr
		}
		return nil, nil
	}
	for _, k := range dups {
		if perr := p.fail(E033, "duplicate version field %q", k); perr != nil {
			return nil, perr
		}
	}
	v := &Version{}
	if raw, ok := obj["created"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			if perr := p.fail(E010, "created must be a string: %v", err); perr != nil {
				return nil, perr
			}
		} else if t, err := time.Parse(time.RFC3339, s); err != nil {
			if perr := p.fail(E010, "created %q is not RFC3339: %v", s, err); perr != nil {
				return nil, perr
			}
		} else {
			v.Created = t
		}
	} else if perr := p.fail(E010, "version missing required field \"created\""); perr != nil {
		return nil, perr
	}

	if raw, ok := obj["state"]; ok {
		m, err := parseDigestMap(p, raw, E053, E052)
		if err != nil {
			return nil, err
		}
		v.State = m
	} else if perr := p.fail(E050, "version missing required field \"state\""); perr != nil {
		return nil, perr
	}

	if raw, ok := obj["message"]; ok {
		_ = json.Unmarshal(raw, &v.Message)
	}
	if raw, ok := obj["user"]; ok {
		uobj, udups, err := decodeObject(raw)
		if err == nil {
			for _, k := range udups {
				if perr := p.fail(E033, "duplicate user field %q", k); perr != nil {
					return nil, perr
				}
			}
			u := &User{}
			if nraw, ok := uobj["name"]; ok {
				_ = json.Unmarshal(nraw, &u.Name)
			}
			if araw, ok := uobj["address"]; ok {
				_ = json.Unmarshal(araw, &u.Address)
			}
			v.User = u
		}
	}
	return v, nil
}

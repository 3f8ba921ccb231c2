package business

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/drilonhametaj25/client-sniper/internal/normalize"
)

// Store defines persistence operations for entities. Find* lookups match on
// the normalized search columns and return at most limit rows in creation
// order. Get* return nil, nil when no row matches.
type Store interface {
	FindByNameCity(ctx context.Context, name, city string, limit int) ([]Entity, error)
	FindByDomain(ctx context.Context, domain string, limit int) ([]Entity, error)
	FindByPhone(ctx context.Context, phone string, limit int) ([]Entity, error)
	FindByAddress(ctx context.Context, address string, limit int) ([]Entity, error)

	GetEntity(ctx context.Context, id string) (*Entity, error)
	GetByUniqueKey(ctx context.Context, key string) (*Entity, error)

	// CreateEntity inserts e with version 1. It returns ErrDuplicateKey when
	// e.UniqueKey is taken.
	CreateEntity(ctx context.Context, e *Entity) error
	// UpdateEntity writes e if the stored version still equals
	// expectedVersion and bumps e.Version. It returns ErrStaleEntity otherwise.
	UpdateEntity(ctx context.Context, e *Entity, expectedVersion int64) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// searchColumns are the derived columns the Find* lookups match on.
type searchColumns struct {
	name    string
	city    string
	domain  string
	phone   string
	address string
}

func searchColumnsOf(e *Entity) searchColumns {
	return searchColumns{
		name:    normalize.Name(e.BusinessName),
		city:    normalize.City(e.City),
		domain:  normalize.ExtractDomain(e.WebsiteURL),
		phone:   normalize.NormalizePhone(e.Phone),
		address: normalize.NormalizeAddress(e.Address),
	}
}

// encodedEntity holds the JSON-encoded collection columns of an entity.
type encodedEntity struct {
	sources     []byte
	neededRoles []byte
	issues      []byte
	analysis    []byte
}

func encodeEntity(e *Entity) (encodedEntity, error) {
	var enc encodedEntity
	var err error
	if enc.sources, err = json.Marshal(nonNil(e.Sources)); err != nil {
		return enc, eris.Wrap(err, "business: encode sources")
	}
	if enc.neededRoles, err = json.Marshal(nonNil(e.NeededRoles)); err != nil {
		return enc, eris.Wrap(err, "business: encode needed_roles")
	}
	if enc.issues, err = json.Marshal(nonNil(e.Issues)); err != nil {
		return enc, eris.Wrap(err, "business: encode issues")
	}
	analysis := e.Analysis
	if analysis == nil {
		analysis = Analysis{}
	}
	if enc.analysis, err = json.Marshal(analysis); err != nil {
		return enc, eris.Wrap(err, "business: encode analysis")
	}
	return enc, nil
}

func (enc encodedEntity) decodeInto(e *Entity) error {
	if err := decodeList(enc.sources, &e.Sources); err != nil {
		return eris.Wrap(err, "business: decode sources")
	}
	if err := decodeList(enc.neededRoles, &e.NeededRoles); err != nil {
		return eris.Wrap(err, "business: decode needed_roles")
	}
	if err := decodeList(enc.issues, &e.Issues); err != nil {
		return eris.Wrap(err, "business: decode issues")
	}
	e.Analysis = nil
	if len(enc.analysis) > 0 {
		var a Analysis
		if err := json.Unmarshal(enc.analysis, &a); err != nil {
			return eris.Wrap(err, "business: decode analysis")
		}
		if len(a) > 0 {
			e.Analysis = a
		}
	}
	return nil
}

func decodeList(raw []byte, dst *[]string) error {
	*dst = nil
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*dst = list
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

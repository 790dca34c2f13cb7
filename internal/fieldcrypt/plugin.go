package fieldcrypt

import (
	"context"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
)

// Plugin applies a Cipher to registered string fields around gorm writes and
// reads. Struct writes (Create, Save) and map updates are sealed; queries and
// completed writes are opened again so callers only ever see plaintext.
type Plugin struct {
	cipher *Cipher

	mu     sync.RWMutex
	fields map[string][]string
}

func NewPlugin(c *Cipher) *Plugin {
	return &Plugin{cipher: c, fields: map[string][]string{}}
}

// Register marks fields (Go field names) of model as sensitive.
func (p *Plugin) Register(model any, fields ...string) *Plugin {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	p.mu.Lock()
	p.fields[t.Name()] = append(p.fields[t.Name()], fields...)
	p.mu.Unlock()
	return p
}

func (p *Plugin) Name() string { return "fieldcrypt" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("fieldcrypt:seal_create", p.seal); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("fieldcrypt:open_create", p.open); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("fieldcrypt:seal_update", p.seal); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("fieldcrypt:open_update", p.open); err != nil {
		return err
	}
	return cb.Query().After("gorm:query").Register("fieldcrypt:open_query", p.open)
}

func (p *Plugin) lookup(db *gorm.DB) ([]*schema.Field, bool) {
	if db.Statement.Schema == nil {
		return nil, false
	}
	p.mu.RLock()
	names := p.fields[db.Statement.Schema.Name]
	p.mu.RUnlock()
	if len(names) == 0 {
		return nil, false
	}
	out := make([]*schema.Field, 0, len(names))
	for _, n := range names {
		if f := db.Statement.Schema.LookUpField(n); f != nil {
			out = append(out, f)
		}
	}
	return out, len(out) > 0
}

func (p *Plugin) seal(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	fields, ok := p.lookup(db)
	if !ok {
		return
	}
	ctx := db.Statement.Context

	if m, ok := db.Statement.Dest.(map[string]any); ok {
		for _, f := range fields {
			for _, key := range []string{f.DBName, f.Name} {
				if s, ok := m[key].(string); ok {
					enc, err := p.cipher.Encrypt(s)
					if err != nil {
						_ = db.AddError(err)
						return
					}
					m[key] = enc
				}
			}
		}
	}

	eachStruct(db.Statement.ReflectValue, db.Statement.Schema.ModelType, func(rv reflect.Value) bool {
		for _, f := range fields {
			v, zero := f.ValueOf(ctx, rv)
			s, ok := v.(string)
			if zero || !ok {
				continue
			}
			enc, err := p.cipher.Encrypt(s)
			if err == nil {
				err = f.Set(ctx, rv, enc)
			}
			if err != nil {
				_ = db.AddError(apperr.Wrap(apperr.ErrEncryption, err))
				return false
			}
		}
		return true
	})
}

func (p *Plugin) open(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	fields, ok := p.lookup(db)
	if !ok {
		return
	}
	ctx := db.Statement.Context

	eachStruct(db.Statement.ReflectValue, db.Statement.Schema.ModelType, func(rv reflect.Value) bool {
		for _, f := range fields {
			v, zero := f.ValueOf(ctx, rv)
			s, ok := v.(string)
			if zero || !ok {
				continue
			}
			res, err := p.cipher.Decrypt(s)
			if err != nil {
				logDecryptFailure(ctx, db.Statement.Schema.Name, f.Name, err)
				continue
			}
			if res.Kind == Decrypted {
				_ = f.Set(ctx, rv, res.Value)
			}
		}
		return true
	})
}

func logDecryptFailure(ctx context.Context, model, field string, err error) {
	logging.FromContext(ctx).Warn("field_decrypt_failed",
		"model", model,
		"field", field,
		"error", err,
	)
}

// eachStruct calls fn for every value of type model held by rv. Pluck and
// Count destinations (scalars, slices of scalars) are skipped.
func eachStruct(rv reflect.Value, model reflect.Type, fn func(reflect.Value) bool) {
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			el := reflect.Indirect(rv.Index(i))
			if el.Kind() != reflect.Struct || el.Type() != model {
				return
			}
			if !fn(el) {
				return
			}
		}
	case reflect.Struct:
		if rv.Type() == model {
			fn(rv)
		}
	}
}

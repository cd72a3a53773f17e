package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/datepoll/internal/kv"
	"github.com/iliyamo/datepoll/internal/model"
)

// ShortLinkRepo persists short links.
type ShortLinkRepo struct {
	store kv.Store
}

func NewShortLinkRepo(store kv.Store) *ShortLinkRepo { return &ShortLinkRepo{store: store} }

func (r *ShortLinkRepo) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	key := shortLinkKey(code)
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	var l model.ShortLink
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, storeErr("decode", key, err)
	}
	if l.Code == "" {
		l.Code = code
	}
	return &l, nil
}

func (r *ShortLinkRepo) Save(ctx context.Context, l *model.ShortLink, ttl time.Duration) error {
	key := shortLinkKey(l.Code)
	raw, err := json.Marshal(l)
	if err != nil {
		return storeErr("encode", key, err)
	}
	return storeErr("set", key, r.store.Set(ctx, key, raw, ttl))
}

func (r *ShortLinkRepo) Exists(ctx context.Context, code string) (bool, error) {
	key := shortLinkKey(code)
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, storeErr("exists", key, err)
	}
	return ok, nil
}

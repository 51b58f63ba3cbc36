package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/platform/pagination"
)

const createdAtField = "createdAt"

// pageQuery describes a keyset listing over a collection ordered by (createdAt desc, id desc).
type pageQuery[D any, T any] struct {
	base   *pfirestore.BaseRepository[D]
	filter pfirestore.QueryBuilder
	decode func(id string, doc D) T
	key    func(T) (time.Time, string)
	// keep applies predicates Firestore cannot express. Pages are refilled until full.
	keep func(T) bool
}

func (q pageQuery[D, T]) run(ctx context.Context, page domain.Pagination) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	size := pagination.NormalizePageSize(page.PageSize)
	batch := size + 1
	if q.keep != nil {
		batch = size * 2
	}

	matched := make([]T, 0, size+1)
	for {
		after := cursor
		docs, ids, err := q.base.Query(ctx, func(query firestore.Query) firestore.Query {
			if q.filter != nil {
				query = q.filter(query)
			}
			query = query.OrderBy(createdAtField, firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
			if !after.IsZero() {
				query = query.StartAfter(after.CreatedAt, after.ID)
			}
			return query.Limit(batch)
		})
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		for i, doc := range docs {
			item := q.decode(ids[i], doc)
			createdAt, id := q.key(item)
			cursor = pagination.Cursor{CreatedAt: createdAt, ID: id}
			if q.keep == nil || q.keep(item) {
				matched = append(matched, item)
			}
			if len(matched) > size {
				break
			}
		}
		if len(matched) > size || len(docs) < batch {
			break
		}
	}

	out := domain.CursorPage[T]{Items: matched}
	if len(matched) > size {
		out.Items = matched[:size]
		createdAt, id := q.key(out.Items[size-1])
		out.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
	}
	return out, nil
}

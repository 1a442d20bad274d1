package memstore

import (
	"context"
	"sort"
	"time"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type tokenRepository struct{ v view }

func (r *tokenRepository) Supersede(ctx context.Context, subjectID uuid.UUID, purpose domain.TokenPurpose, at time.Time) error {
	return r.v.run(ctx, func(st *state) error {
		for id, t := range st.tokens {
			if t.SubjectID == subjectID && t.Purpose == purpose && t.ConsumedAt == nil && t.SupersededAt == nil {
				t.SupersededAt = &at
				st.tokens[id] = t
			}
		}
		return nil
	})
}

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	return r.v.run(ctx, func(st *state) error {
		for _, t := range st.tokens {
			if t.SubjectID == token.SubjectID && t.Purpose == token.Purpose && t.ConsumedAt == nil && t.SupersededAt == nil {
				return repository.ErrLiveTokenExists
			}
		}
		st.tokens[token.ID] = *token
		return nil
	})
}

func (r *tokenRepository) Consume(ctx context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error) {
	var out *domain.Token
	err := r.v.run(ctx, func(st *state) error {
		for id, t := range st.tokens {
			if t.ValueHash != valueHash || t.Purpose != purpose || !t.Live(now) {
				continue
			}
			t.ConsumedAt = &now
			st.tokens[id] = t
			out = &t
			return nil
		}
		return repository.ErrTokenNotFound
	})
	return out, err
}

func (r *tokenRepository) FindByHash(ctx context.Context, valueHash string) (*domain.Token, error) {
	var out *domain.Token
	err := r.v.run(ctx, func(st *state) error {
		for _, t := range st.tokens {
			if t.ValueHash == valueHash {
				out = &t
				return nil
			}
		}
		return repository.ErrTokenNotFound
	})
	return out, err
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.v.run(ctx, func(st *state) error {
		for id, t := range st.tokens {
			if t.ExpiresAt.Before(before) {
				delete(st.tokens, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type deadLetterRepository struct{ v view }

func (r *deadLetterRepository) Save(ctx context.Context, l *domain.DeadLetter) error {
	return r.v.run(ctx, func(st *state) error {
		l.CreatedAt = r.v.now()
		st.deadLetters = append(st.deadLetters, *l)
		return nil
	})
}

func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	out := []*domain.DeadLetter{}
	err := r.v.run(ctx, func(st *state) error {
		for i := range st.deadLetters {
			l := st.deadLetters[i]
			out = append(out, &l)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

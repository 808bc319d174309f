package pipeline

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Store persists completed records so that an interrupted run can be resumed.
type Store interface {
	Get(dataset string, c Combination) (Record, bool, error)
	Set(record Record) error
}

// stepCache memoises step outputs of a single dataset by parameter prefix. Failures are cached
// too, so a failing step is not retried for every combination that shares it.
type stepCache struct {
	c *lru.Cache
}

type cachedOutput struct {
	output interface{}
	record StepRecord
	err    error
}

func newStepCache(size int) (*stepCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "could not create step cache")
	}
	return &stepCache{c: c}, nil
}

func (s *stepCache) get(key string) (cachedOutput, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return cachedOutput{}, false
	}
	return v.(cachedOutput), true
}

func (s *stepCache) add(key string, o cachedOutput) {
	s.c.Add(key, o)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feature-flag-service/internal/cache"
	"feature-flag-service/internal/domain"
	"feature-flag-service/internal/engine"
	"feature-flag-service/internal/repository"
)

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.FeatureFlag{}, &domain.FlagOverride{}); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

type countingRepo struct {
	repository.FlagRepository
	finds int
}

func (r *countingRepo) FindByKey(ctx context.Context, key string) (*domain.FeatureFlag, error) {
	r.finds++
	return r.FlagRepository.FindByKey(ctx, key)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, string) error { return errors.New("cache down") }
func (failingCache) Ping(context.Context) error           { return errors.New("cache down") }

func newServiceForTest(t *testing.T, c cache.Cache) (FlagService, *countingRepo) {
	t.Helper()
	repo := &countingRepo{FlagRepository: repository.NewFlagRepository(newServiceDBForTest(t))}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return NewFlagService(repo, c, time.Minute, nil), repo
}

func TestRoundTrip(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "dark-mode", "dark UI theme", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := svc.Evaluate(ctx, "dark-mode", engine.Context{UserID: "u1"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Enabled || res.Reason != engine.ReasonGlobalDefault {
		t.Fatalf("expected global default false, got %+v", res)
	}

	if err := svc.SetOverride(ctx, "dark-mode", domain.OverrideUser, "u1", true); err != nil {
		t.Fatalf("set override: %v", err)
	}
	res, err = svc.Evaluate(ctx, "dark-mode", engine.Context{UserID: "u1"})
	if err != nil {
		t.Fatalf("evaluate after override: %v", err)
	}
	if !res.Enabled || res.Reason != engine.ReasonUserOverride {
		t.Fatalf("expected user override true, got %+v", res)
	}

	if err := svc.RemoveOverride(ctx, "dark-mode", domain.OverrideUser, "u1"); err != nil {
		t.Fatalf("remove override: %v", err)
	}
	res, err = svc.Evaluate(ctx, "dark-mode", engine.Context{UserID: "u1"})
	if err != nil {
		t.Fatalf("evaluate after removal: %v", err)
	}
	if res.Enabled || res.Reason != engine.ReasonGlobalDefault {
		t.Fatalf("expected global default again, got %+v", res)
	}
}

func TestUserOverrideWinsDespiteConflictingGroup(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "premium", "", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.SetOverride(ctx, "premium", domain.OverrideGroup, "enterprise-customers", true); err != nil {
		t.Fatalf("group override: %v", err)
	}
	if err := svc.SetOverride(ctx, "premium", domain.OverrideUser, "u1", false); err != nil {
		t.Fatalf("user override: %v", err)
	}
	res, err := svc.Evaluate(ctx, "premium", engine.Context{UserID: "u1", GroupID: "enterprise-customers"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Enabled || res.Reason != engine.ReasonUserOverride {
		t.Fatalf("user override must win, got %+v", res)
	}
}

func TestGetFlagCacheAside(t *testing.T) {
	svc, repo := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "cached", "", true); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.GetFlag(ctx, "cached"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	storeReads := repo.finds
	flag, err := svc.GetFlag(ctx, "cached")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if repo.finds != storeReads {
		t.Fatalf("cache hit should not reach the store: before=%d after=%d", storeReads, repo.finds)
	}
	if flag.Key != "cached" || !flag.Enabled {
		t.Fatalf("unexpected cached record: %+v", flag)
	}
}

func TestMutationInvalidatesCache(t *testing.T) {
	svc, repo := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "flip", "", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.GetFlag(ctx, "flip"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := svc.SetEnabled(ctx, "flip", true); err != nil {
		t.Fatalf("set enabled: %v", err)
	}

	storeReads := repo.finds
	flag, err := svc.GetFlag(ctx, "flip")
	if err != nil {
		t.Fatalf("get after mutation: %v", err)
	}
	if repo.finds == storeReads {
		t.Fatal("expected cache miss after invalidation")
	}
	if !flag.Enabled {
		t.Fatalf("stale value served: %+v", flag)
	}
}

func TestOverrideMutationInvalidatesCache(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "ov", "", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Warm the cache through the evaluate path, then mutate an override.
	if _, err := svc.Evaluate(ctx, "ov", engine.Context{UserID: "u1"}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if err := svc.SetOverride(ctx, "ov", domain.OverrideUser, "u1", true); err != nil {
		t.Fatalf("set override: %v", err)
	}
	res, err := svc.Evaluate(ctx, "ov", engine.Context{UserID: "u1"})
	if err != nil {
		t.Fatalf("evaluate after override: %v", err)
	}
	if !res.Enabled || res.Reason != engine.ReasonUserOverride {
		t.Fatalf("stale cached record served after override mutation: %+v", res)
	}
}

func TestCacheFailureDegradesToStoreReads(t *testing.T) {
	svc, _ := newServiceForTest(t, failingCache{})
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "resilient", "", true); err != nil {
		t.Fatalf("create: %v", err)
	}
	flag, err := svc.GetFlag(ctx, "resilient")
	if err != nil {
		t.Fatalf("get with broken cache: %v", err)
	}
	if !flag.Enabled {
		t.Fatalf("unexpected record: %+v", flag)
	}
	if err := svc.SetEnabled(ctx, "resilient", false); err != nil {
		t.Fatalf("mutation with broken cache: %v", err)
	}
	if err := svc.DeleteFlag(ctx, "resilient"); err != nil {
		t.Fatalf("delete with broken cache: %v", err)
	}
}

func TestIdempotentOverrideUpsert(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "ups", "", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.SetOverride(ctx, "ups", domain.OverrideGroup, "beta", true); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if err := svc.SetOverride(ctx, "ups", domain.OverrideGroup, "other", false); err != nil {
		t.Fatalf("second entity: %v", err)
	}
	// Replace the value; the other entity's cell must keep its value.
	if err := svc.SetOverride(ctx, "ups", domain.OverrideGroup, "beta", false); err != nil {
		t.Fatalf("replace: %v", err)
	}

	flag, err := svc.GetFlag(ctx, "ups")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	groups := flag.OverrideMap(domain.OverrideGroup)
	if len(groups) != 2 {
		t.Fatalf("expected 2 group entries, got %v", groups)
	}
	if groups["beta"] != false || groups["other"] != false {
		t.Fatalf("unexpected override values: %v", groups)
	}
}

func TestValidationRunsBeforeStore(t *testing.T) {
	svc, repo := newServiceForTest(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"empty key", func() error { _, err := svc.CreateFlag(ctx, "", "", false); return err }, ErrInvalidKey},
		{"bad key chars", func() error { _, err := svc.CreateFlag(ctx, "no spaces", "", false); return err }, ErrInvalidKey},
		{"key too long", func() error { _, err := svc.CreateFlag(ctx, strings.Repeat("k", 101), "", false); return err }, ErrInvalidKey},
		{"description too long", func() error {
			_, err := svc.CreateFlag(ctx, "ok", strings.Repeat("d", 501), false)
			return err
		}, ErrInvalidDescription},
		{"bad override type", func() error { return svc.SetOverride(ctx, "ok", "tenant", "t1", true) }, ErrInvalidOverrideType},
		{"empty entity id", func() error { return svc.SetOverride(ctx, "ok", domain.OverrideUser, "", true) }, ErrInvalidEntityID},
		{"entity id too long", func() error {
			return svc.SetOverride(ctx, "ok", domain.OverrideUser, strings.Repeat("e", 101), true)
		}, ErrInvalidEntityID},
		{"bad remove type", func() error { return svc.RemoveOverride(ctx, "ok", "device", "d1") }, ErrInvalidOverrideType},
		{"empty context", func() error { _, err := svc.Evaluate(ctx, "ok", engine.Context{}); return err }, ErrEmptyContext},
		{"empty bulk context", func() error { _, err := svc.EvaluateAll(ctx, engine.Context{}); return err }, ErrEmptyContext},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if repo.finds != 0 {
		t.Fatalf("validation failures must not reach the store, saw %d reads", repo.finds)
	}
}

func TestDuplicateCreateConflicts(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateFlag(ctx, "dup", "", false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateFlag(ctx, "dup", "", true)
	if !errors.Is(err, repository.ErrFlagExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEvaluateMissingFlag(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	_, err := svc.Evaluate(context.Background(), "never-created", engine.Context{UserID: "u1"})
	if !errors.Is(err, repository.ErrFlagNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEvaluateAllOrderedByKey(t *testing.T) {
	svc, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	for _, key := range []string{"zeta", "alpha", "mid"} {
		if _, err := svc.CreateFlag(ctx, key, "", false); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}
	if err := svc.SetOverride(ctx, "mid", domain.OverrideRegion, "eu", true); err != nil {
		t.Fatalf("override: %v", err)
	}

	results, err := svc.EvaluateAll(ctx, engine.Context{RegionID: "eu"})
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	wantKeys := []string{"alpha", "mid", "zeta"}
	if len(results) != len(wantKeys) {
		t.Fatalf("expected %d results, got %d", len(wantKeys), len(results))
	}
	for i, want := range wantKeys {
		if results[i].Key != want {
			t.Fatalf("result %d: expected %q, got %q", i, want, results[i].Key)
		}
	}
	if !results[1].Enabled || results[1].Reason != engine.ReasonRegionOverride {
		t.Fatalf("mid: %+v", results[1])
	}
}

package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
)

func TestUsers_CreateConflictAndLookup(t *testing.T) {
	ctx := context.Background()
	c := New()

	u, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.c", Username: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "A@B.C"}); !repository.IsConflict(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got, err := c.Users().GetByID(ctx, u.ID); err != nil || got.Email != "a@b.c" {
		t.Fatalf("GetByID: (%+v, %v)", got, err)
	}
	if _, err := c.Users().GetByEmail(ctx, "missing@x.y"); !repository.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecrets_ConcurrentCreate_OneWinner(t *testing.T) {
	ctx := context.Background()
	c := New()
	u, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.c"})
	if err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Secrets().Create(ctx, u.ID, "SECRET"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !repository.IsConflict(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected 1 winner, got %d", wins)
	}
}

func TestSessions_VerifyAndDelete(t *testing.T) {
	ctx := context.Background()
	c := New()
	u, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "a@b.c"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Sessions().MarkVerified(ctx, u.ID, "dev"); !repository.IsNotFound(err) {
		t.Fatalf("MarkVerified without session: got %v", err)
	}

	s, err := c.Sessions().Create(ctx, u.ID, "dev")
	if err != nil || s.Verified {
		t.Fatalf("Create: (%+v, %v)", s, err)
	}
	if _, err := c.Sessions().Create(ctx, u.ID, "dev"); !repository.IsConflict(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	v, err := c.Sessions().MarkVerified(ctx, u.ID, "dev")
	if err != nil || !v.Verified {
		t.Fatalf("MarkVerified: (%+v, %v)", v, err)
	}

	if ok, _ := c.Sessions().Delete(ctx, u.ID, "dev"); !ok {
		t.Fatal("Delete should report a removed row")
	}
	if ok, _ := c.Sessions().Delete(ctx, u.ID, "dev"); ok {
		t.Fatal("second Delete should be a no-op")
	}
}

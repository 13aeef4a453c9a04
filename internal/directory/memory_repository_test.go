package directory

import (
	"context"
	"testing"
)

func TestMemoryRepositoryPayeeAccountUpdate(t *testing.T) {
	repo := NewMemoryRepository()
	repo.SetPayeeAccount(PayeeAccount{UserID: "creator", AccountID: "acct_1"})

	ctx := context.Background()
	acct, err := repo.PayeeAccount(ctx, "creator")
	if err != nil {
		t.Fatalf("payee account: %v", err)
	}
	if acct.CanReceivePayouts() {
		t.Fatalf("expected account without onboarding to be ineligible")
	}

	if _, err := repo.UpdatePayeeAccount(ctx, "acct_1", true, true); err != nil {
		t.Fatalf("update: %v", err)
	}
	acct, _ = repo.PayeeAccount(ctx, "creator")
	if !acct.CanReceivePayouts() {
		t.Fatalf("expected account to be payout-enabled after update")
	}

	if _, err := repo.UpdatePayeeAccount(ctx, "acct_missing", true, true); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryRepositoryApplicationsAndPosts(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddApplication(Application{ID: "app-1", GigID: "gig-1", PayeeID: "creator"})
	repo.AddPost(Post{ID: "post-1", AuthorID: "creator"})

	ctx := context.Background()
	if err := repo.MarkApplicationInProgress(ctx, "app-1"); err != nil {
		t.Fatalf("mark in progress: %v", err)
	}
	app, _ := repo.Application("app-1")
	if app.Status != ApplicationInProgress {
		t.Fatalf("expected %s got %s", ApplicationInProgress, app.Status)
	}
	if err := repo.MarkApplicationInProgress(ctx, "app-2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	author, err := repo.PostAuthor(ctx, "post-1")
	if err != nil || author != "creator" {
		t.Fatalf("expected creator got %q (%v)", author, err)
	}
}

package syncops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/remoteapi/remoteapitest"
	"github.com/val-town/vt/internal/session"
	"github.com/val-town/vt/internal/vterrors"
)

func newTestOps(t *testing.T, fake *remoteapitest.Fake) (*SyncOps, string) {
	t.Helper()
	root := t.TempDir()
	sess := session.New(fake, nil, nil, nil)
	return New(root, sess, nil), root
}

func TestClone(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID,
		remoteapi.FileEntry{Path: "foo.ts", Kind: remoteapi.KindScript, Content: []byte("export default 1;")},
		remoteapi.FileEntry{Path: "nested/bar.txt", Kind: remoteapi.KindFile, Content: []byte("hello")},
	)

	ops, root := newTestOps(t, fake)
	changes, err := ops.Clone(context.Background(), CloneOptions{ValID: fake.ValID(), BranchID: branchID})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if len(changes.Created) != 2 {
		t.Fatalf("created = %d, want 2", len(changes.Created))
	}

	data, err := os.ReadFile(filepath.Join(root, "foo.ts"))
	if err != nil {
		t.Fatalf("read foo.ts: %v", err)
	}
	if string(data) != "export default 1;" {
		t.Fatalf("foo.ts content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "nested", "bar.txt")); err != nil {
		t.Fatalf("nested/bar.txt missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".vt", "state")); err != nil {
		t.Fatalf(".vt/state missing after clone: %v", err)
	}
}

func TestClone_TargetNotEmpty(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	ops, root := newTestOps(t, fake)
	if err := os.WriteFile(filepath.Join(root, "existing.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ops.Clone(context.Background(), CloneOptions{ValID: fake.ValID(), BranchID: branchID})
	if !errors.Is(err, vterrors.ErrTargetNotEmpty) {
		t.Fatalf("err = %v, want ErrTargetNotEmpty", err)
	}
}

func cloneInto(t *testing.T, fake *remoteapitest.Fake) (*SyncOps, string) {
	t.Helper()
	branchID := fake.MainBranchID()
	ops, root := newTestOps(t, fake)
	if _, err := ops.Clone(context.Background(), CloneOptions{ValID: fake.ValID(), BranchID: branchID}); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	return ops, root
}

func TestStatus_CleanAfterClone(t *testing.T) {
	fake := remoteapitest.New()
	fake.Seed(fake.MainBranchID(), remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, _ := cloneInto(t, fake)

	changes, err := ops.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !changes.IsClean() {
		t.Fatalf("expected clean tree right after clone, got %+v", changes)
	}
}

func TestStatus_DetectsLocalEdits(t *testing.T) {
	fake := remoteapitest.New()
	fake.Seed(fake.MainBranchID(), remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, root := cloneInto(t, fake)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(24 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "a.txt"), future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes, err := ops.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if _, ok := changes.Modified["a.txt"]; !ok {
		t.Fatalf("expected a.txt modified, got %+v", changes)
	}
	if _, ok := changes.Created["b.txt"]; !ok {
		t.Fatalf("expected b.txt created, got %+v", changes)
	}
}

func TestPush(t *testing.T) {
	fake := remoteapitest.New()
	ops, root := cloneInto(t, fake)

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes, err := ops.Push(context.Background(), PushOptions{})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, ok := changes.Created["new.txt"]; !ok {
		t.Fatalf("expected new.txt in created changes, got %+v", changes)
	}

	entries, err := fake.ListFiles(context.Background(), fake.ValID(), fake.MainBranchID(), fake.MainBranchVersion(), true)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if e.Path == "new.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("new.txt not present remotely after push: %+v", entries)
	}
}

func TestPush_PermissionDenied(t *testing.T) {
	fake := remoteapitest.New()
	ops, root := cloneInto(t, fake)
	fake.CanWrite = false
	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := ops.Push(context.Background(), PushOptions{})
	if !errors.Is(err, vterrors.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestPull_FetchesRemoteChanges(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, root := cloneInto(t, fake)

	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a-v2")})
	fake.Seed(branchID, remoteapi.FileEntry{Path: "b.txt", Kind: remoteapi.KindFile, Content: []byte("b")})

	changes, err := ops.Pull(context.Background(), PullOptions{})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if _, ok := changes.Created["b.txt"]; !ok {
		t.Fatalf("expected b.txt created by pull, got %+v", changes)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a-v2" {
		t.Fatalf("a.txt = %q, want a-v2", data)
	}
}

func TestPull_RefusesDirtyWithoutForce(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, root := cloneInto(t, fake)

	fake.Seed(branchID, remoteapi.FileEntry{Path: "b.txt", Kind: remoteapi.KindFile, Content: []byte("b")})
	if err := os.WriteFile(filepath.Join(root, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes, err := ops.Pull(context.Background(), PullOptions{})
	if !errors.Is(err, vterrors.ErrDirtyWorkingTree) {
		t.Fatalf("err = %v, want ErrDirtyWorkingTree", err)
	}
	// The tree is untouched but the returned changes describe the pull that
	// would have applied.
	if _, statErr := os.Stat(filepath.Join(root, "b.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("pull mutated the tree despite being dirty")
	}
	if changes == nil {
		t.Fatal("expected would-be changes alongside ErrDirtyWorkingTree")
	}
	if _, ok := changes.Created["b.txt"]; !ok {
		t.Fatalf("expected b.txt in would-be created set, got %+v", changes)
	}
}

func TestPull_RemovesDeletedFiles(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, root := cloneInto(t, fake)

	if err := fake.DeleteFile(context.Background(), fake.ValID(), "a.txt", remoteapi.DeleteFileOptions{BranchID: branchID}); err != nil {
		t.Fatal(err)
	}

	if _, err := ops.Pull(context.Background(), PullOptions{}); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected a.txt removed, stat err = %v", err)
	}
}

func TestCheckout_SwitchesBranchContent(t *testing.T) {
	fake := remoteapitest.New()
	mainID := fake.MainBranchID()
	fake.Seed(mainID, remoteapi.FileEntry{Path: "main-only.txt", Kind: remoteapi.KindFile, Content: []byte("m")})
	ops, root := cloneInto(t, fake)

	featureBranch, err := fake.CreateBranch(context.Background(), fake.ValID(), "feature", mainID)
	if err != nil {
		t.Fatal(err)
	}
	fake.Seed(featureBranch.ID, remoteapi.FileEntry{Path: "feature-only.txt", Kind: remoteapi.KindFile, Content: []byte("f")})
	// feature-only.txt replaces main-only.txt on this branch.
	if err := fake.DeleteFile(context.Background(), fake.ValID(), "main-only.txt", remoteapi.DeleteFileOptions{BranchID: featureBranch.ID}); err != nil {
		t.Fatal(err)
	}

	_, err = ops.Checkout(context.Background(), CheckoutOptions{BranchName: "feature"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "feature-only.txt")); err != nil {
		t.Fatalf("feature-only.txt missing after checkout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "main-only.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected main-only.txt removed after checkout, stat err = %v", err)
	}
}

func TestCheckout_NewBranch(t *testing.T) {
	fake := remoteapitest.New()
	mainID := fake.MainBranchID()
	fake.Seed(mainID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, _ := cloneInto(t, fake)

	_, err := ops.Checkout(context.Background(), CheckoutOptions{NewBranchName: "wip", ForkedFromBranchID: mainID})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	branches, err := fake.ListBranches(context.Background(), fake.ValID())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, b := range branches {
		if b.Name == "wip" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new branch wip to exist, got %+v", branches)
	}
}

func TestCheckout_BranchNotFound(t *testing.T) {
	fake := remoteapitest.New()
	ops, _ := cloneInto(t, fake)
	_, err := ops.Checkout(context.Background(), CheckoutOptions{BranchName: "nope"})
	if !errors.Is(err, vterrors.ErrBranchNotFound) {
		t.Fatalf("err = %v, want ErrBranchNotFound", err)
	}
}

func TestDelete_RefusesDirtyWithoutForce(t *testing.T) {
	fake := remoteapitest.New()
	ops, root := cloneInto(t, fake)
	if err := os.WriteFile(filepath.Join(root, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ops.Delete(context.Background(), false); !errors.Is(err, vterrors.ErrDirtyWorkingTree) {
		t.Fatalf("err = %v, want ErrDirtyWorkingTree", err)
	}
}

func TestDelete_RemovesLocalStateOnly(t *testing.T) {
	fake := remoteapitest.New()
	ops, root := cloneInto(t, fake)

	if err := ops.Delete(context.Background(), true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".vt")); !os.IsNotExist(err) {
		t.Fatalf("expected .vt removed, stat err = %v", err)
	}
	if _, err := fake.RetrieveVal(context.Background(), fake.ValID()); err != nil {
		t.Fatalf("remote val should be untouched by local delete: %v", err)
	}
}

func TestStashSaveListPop(t *testing.T) {
	fake := remoteapitest.New()
	fake.Seed(fake.MainBranchID(), remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, root := cloneInto(t, fake)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("local edit"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes, err := ops.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	id, err := ops.StashSave(context.Background(), changes)
	if err != nil {
		t.Fatalf("StashSave: %v", err)
	}

	list, err := ops.StashList()
	if err != nil {
		t.Fatalf("StashList: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("StashList = %+v, want single entry with id %s", list, id)
	}

	// Discard the local edit, then restore it from the stash.
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ops.StashPop(context.Background(), id); err != nil {
		t.Fatalf("StashPop: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "local edit" {
		t.Fatalf("a.txt = %q after pop, want %q", data, "local edit")
	}

	list, err = ops.StashList()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected stash removed after pop, got %+v", list)
	}
}

func TestStashPop_NotFound(t *testing.T) {
	fake := remoteapitest.New()
	ops, _ := cloneInto(t, fake)
	err := ops.StashPop(context.Background(), "does-not-exist")
	if !errors.Is(err, vterrors.ErrStashNotFound) {
		t.Fatalf("err = %v, want ErrStashNotFound", err)
	}
}

func TestClone_FixtureTree(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID,
		remoteapi.FileEntry{Path: "proudLimeGoose.http.tsx", Kind: remoteapi.KindHTTP, Content: []byte("// Example Content")},
		remoteapi.FileEntry{Path: "merryCopperAsp.script.tsx", Kind: remoteapi.KindScript},
		remoteapi.FileEntry{Path: "thoughtfulPeachPrimate/clearAquamarineSmelt.cron.tsx", Kind: remoteapi.KindInterval, Content: []byte(`const test = "test";`)},
		remoteapi.FileEntry{Path: "thoughtfulPeachPrimate/tirelessHarlequinSmelt", Kind: remoteapi.KindFile},
	)

	ops, root := newTestOps(t, fake)
	if _, err := ops.Clone(context.Background(), CloneOptions{ValID: fake.ValID(), BranchID: branchID}); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	wantContent := map[string]string{
		"proudLimeGoose.http.tsx":   "// Example Content",
		"merryCopperAsp.script.tsx": "",
		"thoughtfulPeachPrimate/clearAquamarineSmelt.cron.tsx": `const test = "test";`,
		"thoughtfulPeachPrimate/tirelessHarlequinSmelt":        "",
	}
	for rel, want := range wantContent {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", rel, data, want)
		}
	}

	changes, err := ops.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !changes.IsClean() {
		t.Fatalf("expected clean status right after fixture clone, got %+v", changes)
	}
}

func TestPush_RoundTrip(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	ops, root := cloneInto(t, fake)
	ctx := context.Background()

	write := func(content string) {
		t.Helper()
		p := filepath.Join(root, "test.txt")
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		// Edits land faster than mtime granularity; nudge the clock forward
		// so the diff sees the file as newer than the remote.
		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(p, future, future); err != nil {
			t.Fatal(err)
		}
	}

	fetch := func() ([]byte, error) {
		return fake.GetContent(ctx, fake.ValID(), "test.txt", remoteapi.GetContentOptions{
			BranchID: branchID,
			Version:  fake.MainBranchVersion(),
		})
	}

	write("test")
	if _, err := ops.Push(ctx, PushOptions{}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if data, err := fetch(); err != nil || string(data) != "test" {
		t.Fatalf("after create push: %q, %v", data, err)
	}

	write("test2")
	if _, err := ops.Push(ctx, PushOptions{}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if data, err := fetch(); err != nil || string(data) != "test2" {
		t.Fatalf("after overwrite push: %q, %v", data, err)
	}

	if err := os.Remove(filepath.Join(root, "test.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := ops.Push(ctx, PushOptions{}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := fetch(); !errors.Is(err, vterrors.ErrNotFound) {
		t.Fatalf("after delete push: err = %v, want ErrNotFound", err)
	}
}

func TestPush_InfersKindForNewFiles(t *testing.T) {
	fake := remoteapitest.New()
	ops, root := cloneInto(t, fake)

	for _, name := range []string{"myCron.ts", "myHttpHandler.ts", "myCronHttpEmail.ts", "readme.md"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ops.Push(context.Background(), PushOptions{}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := fake.ListFiles(context.Background(), fake.ValID(), fake.MainBranchID(), fake.MainBranchVersion(), true)
	if err != nil {
		t.Fatal(err)
	}
	byPath := map[string]remoteapi.Kind{}
	for _, e := range entries {
		byPath[e.Path] = e.Kind
	}

	want := map[string]remoteapi.Kind{
		"myCron.ts":          remoteapi.KindInterval,
		"myHttpHandler.ts":   remoteapi.KindHTTP,
		"myCronHttpEmail.ts": remoteapi.KindScript,
		"readme.md":          remoteapi.KindFile,
	}
	for path, kind := range want {
		if byPath[path] != kind {
			t.Errorf("%s pushed as %q, want %q", path, byPath[path], kind)
		}
	}
}

func TestPull_Idempotent(t *testing.T) {
	fake := remoteapitest.New()
	branchID := fake.MainBranchID()
	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a")})
	ops, _ := cloneInto(t, fake)

	fake.Seed(branchID, remoteapi.FileEntry{Path: "a.txt", Kind: remoteapi.KindFile, Content: []byte("a-v2")})

	first, err := ops.Pull(context.Background(), PullOptions{})
	if err != nil {
		t.Fatalf("first Pull: %v", err)
	}
	if _, ok := first.Modified["a.txt"]; !ok {
		t.Fatalf("expected a.txt modified on first pull, got %+v", first)
	}

	second, err := ops.Pull(context.Background(), PullOptions{})
	if err != nil {
		t.Fatalf("second Pull: %v", err)
	}
	if !second.IsClean() {
		t.Fatalf("expected second pull to apply nothing, got %+v", second)
	}
}

package hostsfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"focusguard/pkg/blocklist"
)

const testHostsPath = "/etc/hosts"

func newTestStore(t *testing.T, content string) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if content != "" {
		if err := afero.WriteFile(fs, testHostsPath, []byte(content), 0o644); err != nil {
			t.Fatalf("seed hosts file: %v", err)
		}
	}
	store := New(Options{
		Fs:        fs,
		Path:      testHostsPath,
		BackupDir: "/var/backups/focusguard",
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return store, fs
}

func readHosts(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, testHostsPath)
	if err != nil {
		t.Fatalf("read hosts file: %v", err)
	}
	return string(data)
}

func TestReadFailsSoft(t *testing.T) {
	store, _ := newTestStore(t, "")
	if lines := store.Read(); lines != nil {
		t.Errorf("expected no lines for missing file, got %v", lines)
	}
}

func TestParseBlocked(t *testing.T) {
	store, _ := newTestStore(t, strings.Join([]string{
		"# system entries",
		"127.0.0.1 localhost",
		"",
		"# focusguard entries",
		"127.0.0.1 facebook.com",
		"127.0.0.1 WWW.Facebook.com # social",
		"0.0.0.0 other.example.com",
		"127.0.0.1 multi.example.com second.example.com",
		"127.0.0.1 " + strings.Repeat("facebook.com", 5),
	}, "\n")+"\n")

	blocked := store.ParseBlocked()

	if !blocked.Has("facebook.com") || !blocked.Has("www.facebook.com") {
		t.Error("expected facebook entries to be blocked")
	}
	if blocked.Has("localhost") {
		t.Error("system entries above the marker must not count as blocked")
	}
	if blocked.Has("other.example.com") {
		t.Error("did not expect entry with foreign redirect address")
	}
	if blocked.Has("multi.example.com") || blocked.Has("second.example.com") {
		t.Error("multi-domain lines must not contribute to the blocked set")
	}
	for domain := range blocked {
		if len(domain) > 50 {
			t.Errorf("malformed token reported as blocked: %s", domain)
		}
	}
}

func TestWriteAddsOneDomainPerLine(t *testing.T) {
	store, fs := newTestStore(t, "127.0.0.1 localhost\n")

	add := blocklist.NewSet("facebook.com", "www.facebook.com")
	if err := store.Write(context.Background(), add, nil, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if !strings.Contains(content, DefaultMarker) {
		t.Error("expected marker comment in hosts file")
	}
	if !strings.Contains(content, "127.0.0.1 facebook.com\n") {
		t.Error("expected facebook.com entry")
	}
	if !strings.Contains(content, "127.0.0.1 localhost\n") {
		t.Error("pre-existing entry must be preserved")
	}

	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == DefaultRedirect && len(fields) > 2 && !strings.HasPrefix(fields[2], "#") {
			t.Errorf("line maps more than one domain: %q", line)
		}
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	store, fs := newTestStore(t, "")
	add := blocklist.NewSet("facebook.com", "www.facebook.com")

	if err := store.Write(context.Background(), add, nil, true); err != nil {
		t.Fatalf("first write: %v", err)
	}
	first := readHosts(t, fs)

	if err := store.Write(context.Background(), add, nil, true); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second := readHosts(t, fs)

	if first != second {
		t.Errorf("repeated write changed the file:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
	if strings.Count(second, "127.0.0.1 facebook.com\n") != 1 {
		t.Error("expected exactly one facebook.com entry after repeated writes")
	}
}

func TestWriteRemovesDomains(t *testing.T) {
	store, fs := newTestStore(t, strings.Join([]string{
		"127.0.0.1 localhost",
		DefaultMarker,
		"127.0.0.1 facebook.com",
		"127.0.0.1 www.facebook.com",
	}, "\n")+"\n")

	remove := blocklist.NewSet("facebook.com", "www.facebook.com")
	if err := store.Write(context.Background(), nil, remove, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if strings.Contains(content, "facebook.com") {
		t.Errorf("expected facebook entries removed, got:\n%s", content)
	}
	if !strings.Contains(content, "127.0.0.1 localhost") {
		t.Error("unrelated entry must survive removal")
	}
}

func TestWriteRemoveRewritesLegacyMultiDomainLine(t *testing.T) {
	store, fs := newTestStore(t, DefaultMarker+"\n127.0.0.1 facebook.com twitter.com\n")

	remove := blocklist.NewSet("facebook.com")
	if err := store.Write(context.Background(), nil, remove, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if strings.Contains(content, "facebook.com") {
		t.Error("removed domain still present")
	}
	if !strings.Contains(content, "127.0.0.1 twitter.com\n") {
		t.Errorf("remaining domain should be rewritten on its own line, got:\n%s", content)
	}
}

func TestWriteRepairsMalformedEntries(t *testing.T) {
	corrupted := strings.Repeat("facebook.com", 5)
	store, fs := newTestStore(t, strings.Join([]string{
		"127.0.0.1 localhost",
		DefaultMarker,
		"127.0.0.1 " + corrupted,
		"127.0.0.1 multi.example.com second.example.com",
		"127.0.0.1 mixed.example.com " + corrupted,
	}, "\n")+"\n")

	add := blocklist.NewSet("facebook.com")
	if err := store.Write(context.Background(), add, nil, true); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if strings.Contains(content, corrupted) {
		t.Error("malformed token survived repair")
	}
	if !strings.Contains(content, "127.0.0.1 multi.example.com\n") || !strings.Contains(content, "127.0.0.1 second.example.com\n") {
		t.Errorf("well-formed domains of a multi-domain line must be re-split, not dropped:\n%s", content)
	}
	if !strings.Contains(content, "127.0.0.1 mixed.example.com\n") {
		t.Error("well-formed token sharing a line with a corrupted one must survive")
	}
	if !strings.Contains(content, "127.0.0.1 localhost") {
		t.Error("system line above the marker must survive repair")
	}
	if store.ParseBlocked().Has(corrupted) {
		t.Error("malformed token must never be reported blocked")
	}
}

func TestWriteRepairPreservesSystemMultiDomainLine(t *testing.T) {
	systemLine := "127.0.0.1 localhost localhost.localdomain localhost4"
	store, fs := newTestStore(t, systemLine+"\n")

	if err := store.Write(context.Background(), blocklist.NewSet("example.com"), nil, true); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if !strings.Contains(content, systemLine+"\n") {
		t.Errorf("multi-domain system line must be left untouched by repair, got:\n%s", content)
	}
	if !strings.Contains(content, "127.0.0.1 example.com\n") {
		t.Error("expected new entry below the marker")
	}
	if !store.ParseBlocked().Has("example.com") {
		t.Error("expected new entry reported blocked")
	}
	if store.ParseBlocked().Has("localhost") {
		t.Error("system entries must not count as blocked")
	}
}

func TestWriteWithoutRepairKeepsUntouchedLines(t *testing.T) {
	store, fs := newTestStore(t, strings.Join([]string{
		"127.0.0.1 pre.example.com",
		DefaultMarker,
		"127.0.0.1 keep.example.com",
	}, "\n")+"\n")

	if err := store.Write(context.Background(), blocklist.NewSet("new.example.com"), nil, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	content := readHosts(t, fs)
	if !strings.Contains(content, "127.0.0.1 keep.example.com") {
		t.Error("untouched engine entry must be preserved without repair")
	}
	if !strings.Contains(content, "127.0.0.1 pre.example.com") {
		t.Error("redirect-address line above the marker must be preserved")
	}
}

func TestWritePermissionDenied(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testHostsPath, []byte("127.0.0.1 localhost\n"), 0o644); err != nil {
		t.Fatalf("seed hosts file: %v", err)
	}
	store := New(Options{
		Fs:   afero.NewReadOnlyFs(fs),
		Path: testHostsPath,
		Log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	err := store.Write(context.Background(), blocklist.NewSet("facebook.com"), nil, false)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	data, _ := afero.ReadFile(fs, testHostsPath)
	if string(data) != "127.0.0.1 localhost\n" {
		t.Error("file must be untouched after rejected write")
	}
}

func TestWriteRestoresReadOnlyMode(t *testing.T) {
	store, fs := newTestStore(t, "127.0.0.1 localhost\n")
	if err := store.Protect(); err != nil {
		t.Fatalf("protect: %v", err)
	}

	if err := store.Write(context.Background(), blocklist.NewSet("facebook.com"), nil, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	fi, err := fs.Stat(testHostsPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm()&0o200 != 0 {
		t.Error("expected read-only mode restored after write")
	}
	if !strings.Contains(readHosts(t, fs), "facebook.com") {
		t.Error("write must succeed despite read-only mode")
	}
}

func TestBackupRotation(t *testing.T) {
	store, fs := newTestStore(t, "127.0.0.1 localhost\n")

	stale := []string{
		"hosts_backup_20200101_000000.txt",
		"hosts_backup_20200102_000000.txt",
		"hosts_backup_20200103_000000.txt",
		"hosts_backup_20200104_000000.txt",
	}
	for _, name := range stale {
		if err := afero.WriteFile(fs, "/var/backups/focusguard/"+name, []byte("old\n"), 0o600); err != nil {
			t.Fatalf("seed backup: %v", err)
		}
	}

	if err := store.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	names := store.Backups()
	if len(names) > 3 {
		t.Errorf("expected at most 3 backups retained, got %v", names)
	}
	if exists, _ := afero.Exists(fs, "/var/backups/focusguard/hosts_backup_20200101_000000.txt"); exists {
		t.Error("oldest backup should have been pruned")
	}
}

func TestRestoreBackup(t *testing.T) {
	store, fs := newTestStore(t, "127.0.0.1 localhost\n")
	if err := store.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	if err := store.Write(context.Background(), blocklist.NewSet("facebook.com"), nil, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	names := store.Backups()
	if len(names) == 0 {
		t.Fatal("expected at least one backup")
	}
	if err := store.RestoreBackup(names[len(names)-1]); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if strings.Contains(readHosts(t, fs), "facebook.com") {
		t.Error("restore should revert the blocking write")
	}
}

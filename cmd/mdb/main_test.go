package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const colonyRows = `[
  {"ID": "A1", "cage": "2-A-0001", "sex": "♀", "toe": "toe1", "genotype": "CMV-CRE", "birthDate": "2024-01-09", "parentF": "-", "parentM": "-"},
  {"ID": "A2", "cage": "2-A-0001", "sex": "♂", "toe": "toe2", "genotype": "CMV-CRE", "birthDate": "2024-01-09"},
  {"ID": "K1", "cage": "1-B-7", "sex": "♂", "toe": "toe3", "genotype": "CMV-CRE", "birthDate": "2024-01-09"},
  {"ID": "", "cage": "Waiting Room", "sex": "female", "toe": "toe4", "genotype": "NEX-CRE", "birthDate": "24-02-01"}
]`

// withEnv points the CLI at a temporary sqlite file and artifact directory.
func withEnv(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"MDB_SQLITE_PATH":  filepath.Join(dir, "colony.db"),
		"MDB_BLOB_FS_ROOT": filepath.Join(dir, "artifacts"),
		"MDB_LOG_LEVEL":    "error",
	}
	for k, v := range extra {
		env[k] = v
	}
	oldEnv, oldNow := getenv, now
	getenv = func(k string) string { return env[k] }
	now = func() time.Time { return time.Date(2024, time.March, 9, 12, 0, 0, 0, time.Local) }
	t.Cleanup(func() { getenv, now = oldEnv, oldNow })
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func decode(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
}

func importColony(t *testing.T, dir string) string {
	t.Helper()
	in := filepath.Join(dir, "rows.json")
	writeTestFile(t, in, colonyRows)
	code, out, errOut := run(t, "import", "-in", in)
	if code != 0 {
		t.Fatalf("import exited %d: %s", code, errOut)
	}
	var res struct {
		Records  int      `json:"records"`
		Issued   []string `json:"issued"`
		Reissued []string `json:"reissued"`
	}
	decode(t, out, &res)
	if res.Records != 4 || len(res.Issued) != 1 || len(res.Reissued) != 0 {
		t.Fatalf("unexpected import result %+v", res)
	}
	return res.Issued[0]
}

func TestColonyWorkflow(t *testing.T) {
	dir := withEnv(t, nil)
	pup := importColony(t, dir)

	code, _, errOut := run(t, "export")
	if code != 1 || !strings.Contains(errOut, "waiting room") || !strings.Contains(errOut, pup) {
		t.Fatalf("export with waiting records should fail, got %d: %s", code, errOut)
	}

	code, out, errOut := run(t, "move", "-dry-run", pup+"=new:8-A-0042")
	if code != 0 {
		t.Fatalf("dry run exited %d: %s", code, errOut)
	}
	var preview struct {
		Changed []map[string]any `json:"changed"`
	}
	decode(t, out, &preview)
	if len(preview.Changed) != 1 {
		t.Fatalf("unexpected dry-run change set %s", out)
	}

	code, out, errOut = run(t, "move", pup+"=new:8-A-0042", "K1=death")
	if code != 0 {
		t.Fatalf("move exited %d: %s", code, errOut)
	}
	var summary saveSummary
	decode(t, out, &summary)
	if summary.Changed != 2 || len(summary.Review) != 2 || summary.ArtifactKey == "" {
		t.Fatalf("unexpected save summary %+v", summary)
	}
	if !strings.HasPrefix(summary.ArtifactKey, "changelogs/20240309-") {
		t.Fatalf("unexpected artifact key %q", summary.ArtifactKey)
	}

	exported := filepath.Join(dir, "export.json")
	if code, _, errOut := run(t, "export", "-out", exported); code != 0 {
		t.Fatalf("export exited %d: %s", code, errOut)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var rows []map[string]any
	decode(t, string(data), &rows)
	if len(rows) != 4 {
		t.Fatalf("expected 4 exported rows, got %d", len(rows))
	}
	cages := map[string]any{}
	for _, row := range rows {
		cages[row["ID"].(string)] = row["cage"]
	}
	if cages["K1"] != "Memorial" || cages[pup] != "8-A-0042" || cages["A1"] != "2-A-0001" {
		t.Fatalf("unexpected exported cages %v", cages)
	}

	code, out, _ = run(t, "changelog", "-list")
	var keys []string
	decode(t, out, &keys)
	if code != 0 || len(keys) != 1 || keys[0] != summary.ArtifactKey {
		t.Fatalf("expected archived key %q, got %v", summary.ArtifactKey, keys)
	}

	code, out, errOut = run(t, "changelog", "-key", summary.ArtifactKey)
	if code != 0 {
		t.Fatalf("changelog exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"updated": 2`) {
		t.Fatalf("changelog should update both records: %s", out)
	}

	code, out, _ = run(t, "counts", "-category", "STRAIN_B")
	var counts []struct {
		Genotype string `json:"genotype"`
		Females  int    `json:"females"`
	}
	decode(t, out, &counts)
	if code != 0 || len(counts) != 1 || counts[0].Genotype != "NEX-CRE" || counts[0].Females != 1 {
		t.Fatalf("unexpected counts %s", out)
	}
}

func TestAddPlacesNewAnimal(t *testing.T) {
	dir := withEnv(t, nil)
	pup := importColony(t, dir)
	if code, _, errOut := run(t, "move", pup+"=2-A-0001"); code != 0 {
		t.Fatalf("move exited %d: %s", code, errOut)
	}

	code, out, errOut := run(t, "add", "-sex", "female", "-toe", "5", "-genotype", "CMV-CRE", "-birth", "2024-02-02", "-mother", "A1", "-cage", "2-A-0001")
	if code != 0 {
		t.Fatalf("add exited %d: %s", code, errOut)
	}
	var summary saveSummary
	decode(t, out, &summary)
	if summary.Added != 1 {
		t.Fatalf("expected one added record, got %+v", summary)
	}

	code, _, errOut = run(t, "add", "-sex", "?", "-toe", "5", "-genotype", "G", "-birth", "2024-02-02", "-cage", "2-A-0001")
	if code != 1 || !strings.Contains(errOut, "entry field sex") {
		t.Fatalf("expected invalid entry failure, got %d: %s", code, errOut)
	}
}

func TestDiffCommand(t *testing.T) {
	dir := withEnv(t, nil)
	base := filepath.Join(dir, "base.json")
	work := filepath.Join(dir, "work.json")
	writeTestFile(t, base, `[{"ID": "A1", "cage": "2-A-1", "sex": "F"}, {"ID": "A2", "cage": "2-A-1", "sex": "M"}]`)
	writeTestFile(t, work, `[{"ID": "A1", "cage": "2-A-1", "sex": "F", "breedDate": "2024-03-01"}, {"ID": "A2", "cage": "2-A-1", "sex": "M"}, {"ID": "A3", "cage": "2-A-1", "sex": "M"}]`)

	code, out, errOut := run(t, "diff", "-baseline", base, "-working", work)
	if code != 0 {
		t.Fatalf("diff exited %d: %s", code, errOut)
	}
	var changes struct {
		Added   []struct{ ID string } `json:"added"`
		Changed []struct{ ID string } `json:"changed"`
	}
	decode(t, out, &changes)
	if len(changes.Added) != 1 || changes.Added[0].ID != "A3" || len(changes.Changed) != 1 || changes.Changed[0].ID != "A1" {
		t.Fatalf("unexpected change set %s", out)
	}
}

func TestMetricsFile(t *testing.T) {
	dir := withEnv(t, map[string]string{"MDB_LOG_LEVEL": "debug"})
	importColony(t, dir)
	path := filepath.Join(dir, "metrics.prom")
	code, _, errOut := run(t, "-metrics", path, "counts")
	if code != 0 {
		t.Fatalf("counts exited %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "session operations") || !strings.Contains(errOut, "mousedb_session_metrics_") {
		t.Fatalf("expvar summary missing from debug log:\n%s", errOut)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `mousedb_session_operations_total{operation="open_store",status="success"} 1`) {
		t.Fatalf("metrics missing open_store counter:\n%s", data)
	}
}

func TestTraceFile(t *testing.T) {
	dir := withEnv(t, nil)
	pup := importColony(t, dir)
	path := filepath.Join(dir, "trace.jsonl")
	if code, _, errOut := run(t, "-trace", path, "move", pup+"=2-A-0001"); code != 0 {
		t.Fatalf("move exited %d: %s", code, errOut)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	statuses := map[string]string{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry struct {
			Operation string `json:"operation"`
			Status    string `json:"status"`
		}
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode trace line: %v\n%s", err, data)
		}
		statuses[entry.Operation] = entry.Status
	}
	for _, op := range []string{"open_store", "save"} {
		if statuses[op] != "success" {
			t.Fatalf("trace missing successful %s span:\n%s", op, data)
		}
	}
}

func TestViewScopesNewCages(t *testing.T) {
	dir := withEnv(t, nil)
	pup := importColony(t, dir)
	if code, _, errOut := run(t, "move", pup+"=2-A-0001"); code != 0 {
		t.Fatalf("move exited %d: %s", code, errOut)
	}
	animal := []string{"-sex", "female", "-toe", "5", "-genotype", "CMV-CRE", "-birth", "2024-02-02"}

	code, _, errOut := run(t, append(append([]string{"add", "-view", "BACKUP"}, animal...), "-new-cage", "2-A-9")...)
	if code != 1 || !strings.Contains(errOut, "backup cages cannot use a strain-area prefix") {
		t.Fatalf("backup view accepted a strain cage, got %d: %s", code, errOut)
	}

	code, _, errOut = run(t, append(append([]string{"add", "-view", "STRAIN_A"}, animal...), "-new-cage", "0077")...)
	if code != 0 {
		t.Fatalf("add exited %d: %s", code, errOut)
	}
	code, out, errOut := run(t, "export")
	if code != 0 {
		t.Fatalf("export exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"2-A-0077"`) {
		t.Fatalf("strain view should prefix the new cage label:\n%s", out)
	}

	if code, _, _ := run(t, "move", "-view", "Memorial", "K1=death"); code != 2 {
		t.Fatalf("non-regular view should be a usage error, got %d", code)
	}
}

func TestMoveWithoutNetChangeSkipsSave(t *testing.T) {
	dir := withEnv(t, nil)
	importColony(t, dir)

	code, out, errOut := run(t, "move", "K1=death", "K1=release")
	if code != 0 {
		t.Fatalf("move exited %d: %s", code, errOut)
	}
	var summary saveSummary
	decode(t, out, &summary)
	if !summary.Unchanged || summary.ArtifactKey != "" {
		t.Fatalf("round trip should not save, got %+v", summary)
	}

	code, out, _ = run(t, "changelog", "-list")
	var keys []string
	decode(t, out, &keys)
	if code != 0 || len(keys) != 0 {
		t.Fatalf("no changelog expected, got %v", keys)
	}
}

func TestUsageErrors(t *testing.T) {
	withEnv(t, nil)
	cases := [][]string{
		{},
		{"bogus"},
		{"import"},
		{"diff", "-baseline", "x.json"},
		{"move"},
		{"move", "no-target"},
		{"add", "-sex", "female"},
		{"changelog"},
		{"-unknown-flag", "counts"},
	}
	for _, args := range cases {
		if code, _, _ := run(t, args...); code != 2 {
			t.Fatalf("args %v: expected exit 2, got %d", args, code)
		}
	}
}

func TestConfigErrors(t *testing.T) {
	withEnv(t, map[string]string{"MDB_STORAGE_DRIVER": "cassandra"})
	code, _, errOut := run(t, "counts")
	if code != 1 || !strings.Contains(errOut, "MDB_STORAGE_DRIVER") {
		t.Fatalf("expected config failure, got %d: %s", code, errOut)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	withEnv(t, nil)
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"mdb", "bogus"}
	main()
	if len(codes) != 1 || codes[0] != 2 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}

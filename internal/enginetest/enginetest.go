// Package enginetest writes small shell scripts that imitate a UCI engine,
// so supervisor and HTTP tests run without a real engine binary.
package enginetest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const header = `#!/bin/sh
searching=0
while IFS= read -r line; do
`

const footer = `done
`

const handshake = `    uci)
      echo "id name FakeFish 1.0"
      echo "id author enginetest"
      echo "uciok"
      ;;
    isready)
      echo "readyok"
      ;;
    quit)
      exit 0
      ;;
`

// Script returns the path of a fake engine that answers every search
// immediately with two multipv lines and "bestmove d2d4 ponder d7d5".
func Script(t *testing.T) string {
	t.Helper()
	body := header + `  set -- $line
  case "$1" in
` + handshake + `    go)
      echo "info depth 1 seldepth 1 multipv 1 score cp 18 nodes 40 nps 4000 time 5 pv e2e4 e7e5"
      echo "info depth 12 seldepth 16 multipv 1 score cp 35 nodes 90000 nps 450000 time 200 pv d2d4 d7d5 c2c4"
      echo "info depth 12 seldepth 15 multipv 2 score cp 21 nodes 90000 nps 450000 time 200 pv e2e4 c7c5"
      echo "bestmove d2d4 ponder d7d5"
      ;;
  esac
` + footer
	return write(t, body)
}

// LogScript behaves like Script but records every received line to logPath
// and sleeps briefly before answering a search, widening the window in which
// an interleaved command would be visible.
func LogScript(t *testing.T, logPath string) string {
	t.Helper()
	body := header + fmt.Sprintf(`  printf '%%s\n' "$line" >> %q
  set -- $line
  case "$1" in
`, logPath) + handshake + `    go)
      sleep 0.2
      echo "info depth 5 multipv 1 score cp 12 nodes 500 nps 2500 pv e2e4"
      echo "bestmove e2e4"
      ;;
  esac
` + footer
	return write(t, body)
}

// HoldOnceScript holds the first search until "stop" arrives (then announces
// "bestmove e2e4"); every later search answers immediately with d2d4. Used
// for timeout and stale-output tests.
func HoldOnceScript(t *testing.T) string {
	t.Helper()
	flag := filepath.Join(t.TempDir(), "held")
	body := header + `  set -- $line
  case "$1" in
` + handshake + fmt.Sprintf(`    go)
      if [ -e %[1]q ]; then
        echo "info depth 10 multipv 1 score cp 30 nodes 8000 nps 80000 pv d2d4 d7d5"
        echo "bestmove d2d4"
      else
        : > %[1]q
        searching=1
      fi
      ;;
    stop)
      if [ "$searching" -eq 1 ]; then
        echo "bestmove e2e4"
        searching=0
      fi
      ;;
`, flag) + `  esac
` + footer
	return write(t, body)
}

// CrashOnceScript exits on the first search it receives; a restarted process
// answers normally. Used for crash-and-lazy-reinit tests.
func CrashOnceScript(t *testing.T) string {
	t.Helper()
	flag := filepath.Join(t.TempDir(), "crashed")
	body := header + `  set -- $line
  case "$1" in
` + handshake + fmt.Sprintf(`    go)
      if [ -e %[1]q ]; then
        echo "info depth 8 multipv 1 score cp 10 nodes 900 nps 9000 pv e2e4 e7e5"
        echo "bestmove e2e4"
      else
        : > %[1]q
        exit 3
      fi
      ;;
`, flag) + `  esac
` + footer
	return write(t, body)
}

// SilentScript never completes the handshake. Used for init timeout tests.
func SilentScript(t *testing.T) string {
	t.Helper()
	body := `#!/bin/sh
while IFS= read -r line; do
  :
done
`
	return write(t, body)
}

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeengine.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// Command vtrie-cli is an interactive shell for exploring the versioned
// trie store: base writes, snapshot lifecycles, pinned readers, and
// bbolt archives.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/andreyvit/vtrie"
	"github.com/andreyvit/vtrie/dump"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

var (
	tree        = vtrie.New()
	interactive = term.IsTerminal(int(os.Stdin.Fd()))
)

func main() {
	if interactive {
		fmt.Println("vtrie shell. Type HELP for available commands.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	printPrompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			handleCommand(line)
		}
		printPrompt()
	}
	if err := scanner.Err(); err != nil {
		printError(fmt.Sprintf("reading input: %v", err))
		os.Exit(1)
	}
	if interactive {
		fmt.Println()
	}
}

func printPrompt() {
	if interactive {
		fmt.Printf("%s(vtrie) > %s", colorYellow, colorReset)
	}
}

func printError(msg string) {
	if interactive {
		fmt.Printf("%s%s%s\n", colorRed, msg, colorReset)
	} else {
		fmt.Println("ERR " + msg)
	}
}

func printOK(msg string) {
	if interactive {
		fmt.Printf("%s%s%s\n", colorGreen, msg, colorReset)
	} else {
		fmt.Println(msg)
	}
}

func handleCommand(line string) {
	parts := strings.Fields(line)
	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	switch cmd {
	case "PUT":
		execPut(args)
	case "GET":
		execGet(args)
	case "TS":
		printOK(fmt.Sprintf("ts=%d", tree.Ts()))
	case "SCAN":
		execScan(args)
	case "STATS":
		s := tree.Stats()
		printOK(fmt.Sprintf("keys=%d nodes=%d depth=%d ts=%d", s.Keys, s.Nodes, s.MaxDepth, s.Ts))
	case "TREE":
		fmt.Print(tree.Dump())
	case "SNAP":
		s := tree.CreateSnapshot()
		printOK(fmt.Sprintf("snapshot %d created at ts=%d", s.ID(), s.Ts()))
	case "SNAPS":
		printOK(fmt.Sprintf("open snapshots: %d", tree.SnapshotCount()))
	case "SNAPPUT":
		execSnapPut(args)
	case "SNAPGET":
		execSnapGet(args)
	case "READER":
		execReader(args)
	case "READERS":
		execReaders(args)
	case "CLOSEREADER":
		execCloseReader(args)
	case "CLOSESNAP":
		execCloseSnap(args)
	case "SAVE":
		execSave(args)
	case "LOAD":
		execLoad(args)
	case "HELP":
		printHelp()
	case "EXIT", "QUIT":
		os.Exit(0)
	default:
		printError(fmt.Sprintf("unknown command %s, type HELP", cmd))
	}
}

func printHelp() {
	fmt.Print(`PUT <key> <value>            write into the base store
GET <key> [ts]               read from the base store (default: current ts)
TS                           print the base store timestamp
SCAN [snap reader]           list entries of a pinned reader, or of a transient one
STATS                        base tree shape
TREE                         dump the base tree structure
SNAP                         create a snapshot
SNAPS                        count open snapshots
SNAPPUT <snap> <key> <value> write into a snapshot
SNAPGET <snap> <key> [ts]    read from a snapshot
READER <snap>                issue a pinned reader on a snapshot
READERS <snap>               count a snapshot's active readers
CLOSEREADER <snap> <reader>  revoke a reader
CLOSESNAP <snap>             close a snapshot
SAVE <path>                  archive the current base view into a bbolt file
LOAD <path>                  replace the base store with an archive's contents
EXIT                         leave the shell
`)
}

func execPut(args []string) {
	if len(args) != 2 {
		printError("usage: PUT <key> <value>")
		return
	}
	if err := tree.Insert([]byte(args[0]), []byte(args[1])); err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("ok, ts=%d", tree.Ts()))
}

func execGet(args []string) {
	if len(args) < 1 || len(args) > 2 {
		printError("usage: GET <key> [ts]")
		return
	}
	ts := tree.Ts()
	if len(args) == 2 {
		var ok bool
		if ts, ok = parseTs(args[1]); !ok {
			return
		}
	}
	value, commitTs, err := tree.Get([]byte(args[0]), ts)
	if err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("%s @%d", value, commitTs))
}

func execSnapPut(args []string) {
	if len(args) != 3 {
		printError("usage: SNAPPUT <snap> <key> <value>")
		return
	}
	s := lookupSnap(args[0])
	if s == nil {
		return
	}
	if err := s.Insert([]byte(args[1]), []byte(args[2])); err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("ok, snapshot ts=%d", s.Ts()))
}

func execSnapGet(args []string) {
	if len(args) < 2 || len(args) > 3 {
		printError("usage: SNAPGET <snap> <key> [ts]")
		return
	}
	s := lookupSnap(args[0])
	if s == nil {
		return
	}
	ts := s.Ts()
	if len(args) == 3 {
		var ok bool
		if ts, ok = parseTs(args[2]); !ok {
			return
		}
	}
	value, commitTs, err := s.Get([]byte(args[1]), ts)
	if err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("%s @%d", value, commitTs))
}

func execReader(args []string) {
	if len(args) != 1 {
		printError("usage: READER <snap>")
		return
	}
	s := lookupSnap(args[0])
	if s == nil {
		return
	}
	r, err := s.NewReader()
	if err != nil {
		printError(err.Error())
		return
	}
	readers[readerKey{s.ID(), r.ID()}] = r
	printOK(fmt.Sprintf("reader %d issued on snapshot %d", r.ID(), s.ID()))
}

func execReaders(args []string) {
	if len(args) != 1 {
		printError("usage: READERS <snap>")
		return
	}
	s := lookupSnap(args[0])
	if s == nil {
		return
	}
	n, err := s.ActiveReaders()
	if err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("active readers: %d", n))
}

func execCloseReader(args []string) {
	if len(args) != 2 {
		printError("usage: CLOSEREADER <snap> <reader>")
		return
	}
	s := lookupSnap(args[0])
	if s == nil {
		return
	}
	rid, ok := parseTs(args[1])
	if !ok {
		return
	}
	if err := s.CloseReader(rid); err != nil {
		printError(err.Error())
		return
	}
	delete(readers, readerKey{s.ID(), rid})
	printOK("reader closed")
}

func execCloseSnap(args []string) {
	if len(args) != 1 {
		printError("usage: CLOSESNAP <snap>")
		return
	}
	id, ok := parseTs(args[0])
	if !ok {
		return
	}
	err := tree.CloseSnapshot(id)
	if errors.Is(err, vtrie.ErrSnapshotReadersNotClosed) {
		printError("snapshot has active readers; CLOSEREADER them first")
		return
	}
	if err != nil {
		printError(err.Error())
		return
	}
	printOK("snapshot closed")
}

func execScan(args []string) {
	var it *vtrie.Iterator
	switch len(args) {
	case 0:
		// Transient view of the base store: snapshot, pin, enumerate, drop.
		s := tree.CreateSnapshot()
		r, err := s.NewReader()
		if err != nil {
			printError(err.Error())
			return
		}
		defer func() {
			if err := s.CloseReader(r.ID()); err == nil {
				_ = s.Close()
			}
		}()
		it = r.Iter()
	case 2:
		sid, ok := parseTs(args[0])
		if !ok {
			return
		}
		rid, ok := parseTs(args[1])
		if !ok {
			return
		}
		r := readers[readerKey{sid, rid}]
		if r == nil {
			printError(fmt.Sprintf("no reader %d on snapshot %d", rid, sid))
			return
		}
		it = r.Iter()
	default:
		printError("usage: SCAN [snap reader]")
		return
	}

	n := 0
	for it.Next() {
		fmt.Printf("%s = %s @%d\n", it.Key(), it.Value(), it.Ts())
		n++
	}
	printOK(fmt.Sprintf("%d entries", n))
}

func execSave(args []string) {
	if len(args) != 1 {
		printError("usage: SAVE <path>")
		return
	}
	s := tree.CreateSnapshot()
	r, err := s.NewReader()
	if err != nil {
		printError(err.Error())
		return
	}
	id, err := dump.Write(args[0], r)
	if cerr := s.CloseReader(r.ID()); cerr == nil {
		_ = s.Close()
	}
	if err != nil {
		printError(err.Error())
		return
	}
	printOK(fmt.Sprintf("archived as %s", id))
}

func execLoad(args []string) {
	if len(args) != 1 {
		printError("usage: LOAD <path>")
		return
	}
	if n := tree.SnapshotCount(); n > 0 {
		printError(fmt.Sprintf("%d snapshots still open; close them before LOAD", n))
		return
	}
	t, meta, err := dump.Read(args[0])
	if err != nil {
		printError(err.Error())
		return
	}
	tree = t
	clear(readers)
	printOK(fmt.Sprintf("loaded archive %s: %d keys, ts=%d", meta.ArchiveID, meta.Keys, meta.MaxTs))
}

type readerKey struct {
	snap, reader uint64
}

var readers = make(map[readerKey]*vtrie.Reader)

func lookupSnap(arg string) *vtrie.Snapshot {
	id, ok := parseTs(arg)
	if !ok {
		return nil
	}
	s := tree.Snapshot(id)
	if s == nil {
		printError(fmt.Sprintf("no open snapshot %d", id))
	}
	return s
}

func parseTs(arg string) (uint64, bool) {
	v, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		printError(fmt.Sprintf("not a number: %s", arg))
		return 0, false
	}
	return v, true
}

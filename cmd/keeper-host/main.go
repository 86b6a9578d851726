// Command keeper-host is the native-messaging process entrypoint: it wires
// the storage/session/backup/journal stack together and pumps length-
// prefixed JSON frames between stdin/stdout and the dispatcher.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atotto/clipboard"

	"github.com/kdbxkeeper/keeper/internal/backup"
	"github.com/kdbxkeeper/keeper/internal/journal"
	"github.com/kdbxkeeper/keeper/internal/keeper"
	"github.com/kdbxkeeper/keeper/internal/session"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/krypto"
)

const (
	bufferSize   = 1 << 16
	maxFrameSize = 1 << 20
)

type osClipboard struct{}

func (osClipboard) Set(text string) error { return clipboard.WriteAll(text) }

func main() {
	dir, err := stateDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper-host: %v\n", err)
		os.Exit(1)
	}

	disp, sess, err := wire(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper-host: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = sess.Shutdown()
		os.Exit(0)
	}()

	reader := bufio.NewReaderSize(os.Stdin, bufferSize)
	writer := bufio.NewWriterSize(os.Stdout, bufferSize)
	ctx := context.Background()

	for {
		payload, err := readFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "keeper-host: read error: %v\n", err)
			return
		}

		var req keeper.Request
		var resp keeper.Response
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = keeper.Response{Success: false, Error: "bad request: invalid json"}
		} else {
			resp = disp.Dispatch(ctx, req)
		}

		if err := writeFrame(writer, resp); err != nil {
			fmt.Fprintf(os.Stderr, "keeper-host: write error: %v\n", err)
			return
		}
	}
}

func wire(dir string) (*keeper.Dispatcher, *session.Manager, error) {
	primary, err := store.NewPrimaryStore(filepath.Join(dir, "vault.primary"))
	if err != nil {
		return nil, nil, fmt.Errorf("open primary store: %w", err)
	}
	secondary, err := store.OpenSecondaryStore(filepath.Join(dir, "vault.sqlite"))
	if err != nil {
		return nil, nil, fmt.Errorf("open secondary store: %w", err)
	}
	dual := store.New(primary, secondary)

	tokenStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-token"))
	if err != nil {
		return nil, nil, fmt.Errorf("open token store: %w", err)
	}
	keyStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-key"))
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}

	loaded, err := dual.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load durable vault: %w", err)
	}

	now := time.Now()
	sess, err := session.New(dual, tokenStore, keyStore, krypto.DefaultArgon2Func, loaded != nil)
	if err != nil {
		return nil, nil, fmt.Errorf("construct session manager: %w", err)
	}
	sess.SetClipboard(osClipboard{})

	cfg := keeper.DefaultConfig()
	sess.SetIdleTimeout(cfg.IdleTimeout)
	sess.SetClipboardTimeout(cfg.ClipboardTimeout)
	sess.SetUnlockTokenTTL(cfg.UnlockTokenTTL)

	j := journal.New(secondary)

	sched, err := backup.New(secondary, dual, now)
	if err != nil {
		return nil, nil, fmt.Errorf("construct backup scheduler: %w", err)
	}

	return keeper.New(sess, dual, j, sched, krypto.DefaultArgon2Func, cfg), sess, nil
}

func stateDir() (string, error) {
	if dir := os.Getenv("KEEPER_STATE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		usr, uerr := user.Current()
		if uerr != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		base = filepath.Join(usr.HomeDir, ".config")
	}
	return filepath.Join(base, "keeper"), nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(w *bufio.Writer, resp keeper.Response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(encoded)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return err
	}
	return w.Flush()
}

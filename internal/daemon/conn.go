package daemon

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hausd/itd/internal/wire"
)

type phase int

const (
	phaseIngest phase = iota
	phaseQuery
)

// handle runs one connection's INGEST -> QUERY state machine (spec §4.7).
// The connection is fully synchronous: a line is read, acted on, and (in
// the query phase) replied to before the next read — there is no
// per-connection concurrency, only the cross-connection concurrency the
// daemon's one-goroutine-per-connection accept loop provides.
func (d *Daemon) handle(ctx context.Context, conn net.Conn) {
	id := uuid.New()
	log := d.log.With(zap.String("conn_id", id.String()), zap.String("remote", conn.RemoteAddr().String()))
	log.Info("connection accepted")
	defer func() {
		conn.Close()
		log.Info("connection closed")
	}()

	scanner := bufio.NewScanner(conn)
	ph := phaseIngest
	_ = conn.SetReadDeadline(time.Now().Add(connTimeout))

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(connTimeout))
		line := scanner.Text()

		if ph == phaseIngest {
			if line == wire.EOFLine {
				ph = phaseQuery
				continue
			}
			d.ingestLine(ctx, line, log)
			continue
		}

		reply := d.disp.Dispatch(ctx, line, time.Now())
		if _, err := conn.Write([]byte(reply)); err != nil {
			log.Warn("write failed", zap.Error(err))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn("read failed", zap.Error(err))
	}
}

// ingestLine applies one PresenceLog record (spec §4.3). Malformed lines
// are silently dropped — the ingestion source is user-supplied and ragged
// by design, so nothing here escalates to an abort.
func (d *Daemon) ingestLine(ctx context.Context, line string, log *zap.Logger) {
	if wire.IsBlankOrComment(line) {
		return
	}

	fields := wire.Fields(line)
	if len(fields) < 3 {
		return
	}

	t, err := wire.ParseTimestamp(fields[1], time.Now())
	if err != nil {
		return
	}
	name := fields[2]

	switch fields[0] {
	case "START":
		if _, err := d.eng.Start(ctx, name, t); err != nil {
			log.Error("start failed", zap.Error(err), zap.String("name", name))
		}
	case "STOP":
		if _, err := d.eng.Stop(ctx, name, t); err != nil {
			log.Error("stop failed", zap.Error(err), zap.String("name", name))
		}
	default:
		// unknown record type: silently dropped (spec §4.3)
	}
}

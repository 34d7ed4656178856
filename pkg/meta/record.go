package meta

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var logger = internal.GetLogger("meta")

type Outcome string

const (
	OutcomeUpToDate Outcome = "uptodate"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFailed   Outcome = "failed"
)

// SyncRecord is what one target's sync run leaves behind in the journal.
type SyncRecord struct {
	Session    string    `cbor:"1,keyasint"`
	Target     string    `cbor:"2,keyasint"`
	Outcome    Outcome   `cbor:"3,keyasint"`
	Reused     int64     `cbor:"4,keyasint"`
	Downloaded int64     `cbor:"5,keyasint"`
	Fetches    int       `cbor:"6,keyasint"`
	Error      string    `cbor:"7,keyasint,omitempty"`
	Started    time.Time `cbor:"8,keyasint"`
	Finished   time.Time `cbor:"9,keyasint"`
	FileSum    string    `cbor:"10,keyasint,omitempty"`
}

// Journal stores sync records and serializes syncs of the same tree across
// hosts.
type Journal interface {
	Record(ctx context.Context, rec *SyncRecord) error
	// Last returns the newest record of target, nil when there is none.
	Last(ctx context.Context, target string) (*SyncRecord, error)
	// History returns up to n records of target, newest first.
	History(ctx context.Context, target string, n int) ([]*SyncRecord, error)
	// Lock holds resource until the returned func is called.
	Lock(ctx context.Context, resource string, timeout time.Duration) (func(), error)
	Close() error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("meta: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("meta: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(rec *SyncRecord) ([]byte, error) {
	return encMode.Marshal(rec)
}

func decodeRecord(data []byte) (*SyncRecord, error) {
	rec := &SyncRecord{}
	if err := decMode.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

package wire

import (
	"fmt"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/vmihailenco/msgpack/v5"
)

type registrationRecord struct {
	Addr         string `msgpack:"addr"`
	SolveID      string `msgpack:"solve_id"`
	RegisteredAt int64  `msgpack:"registered_at"`
}

// EncodeRegistration serializes the value stored under a worker key. The
// uuid is the key itself and is not repeated.
func EncodeRegistration(reg domain.WorkerRegistration) ([]byte, error) {
	return msgpack.Marshal(&registrationRecord{
		Addr:         reg.Addr,
		SolveID:      reg.SolveID,
		RegisteredAt: reg.RegisteredAt.UnixNano(),
	})
}

// DecodeRegistration parses a value written by EncodeRegistration.
func DecodeRegistration(uuid string, data []byte) (domain.WorkerRegistration, error) {
	var rec registrationRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return domain.WorkerRegistration{}, fmt.Errorf("%w: worker registration %s: %v", domain.ErrProtocol, uuid, err)
	}
	return domain.WorkerRegistration{
		UUID:         uuid,
		Addr:         rec.Addr,
		SolveID:      rec.SolveID,
		RegisteredAt: time.Unix(0, rec.RegisteredAt).UTC(),
	}, nil
}

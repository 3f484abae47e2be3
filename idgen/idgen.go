package idgen

import (
	"hash/fnv"
	"os"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

// NewWorker builds an id worker. The machine id comes from MACHINE_ID when set; sonyflake's
// private-ip lookup is tried next and the host name hash is the last resort.
func NewWorker() *sonyflake.Sonyflake {
	if v := os.Getenv("MACHINE_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 16); err == nil {
			return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: func() (uint16, error) { return uint16(id), nil }})
		}
		logrus.Warnf("ignore invalid MACHINE_ID '%s'", v)
	}
	if worker := sonyflake.NewSonyflake(sonyflake.Settings{}); worker != nil {
		return worker
	}
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: hostMachineID})
}

func hostMachineID() (uint16, error) {
	name, err := os.Hostname()
	if err != nil {
		return 0, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return uint16(h.Sum32()), nil
}

func NextID(worker *sonyflake.Sonyflake) types.ID {
	id, err := worker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

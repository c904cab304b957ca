package idgen

import (
	"errors"
	"hash/fnv"
	"net"
	"os"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/sony/sonyflake"
)

// NewWorker builds a sonyflake worker whose machine id comes from SONYFLAKE_MACHINE_ID,
// the lower 16 bits of a private IPv4 address, or a hash of the host name, in that order.
func NewWorker() *sonyflake.Sonyflake {
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: machineID})
}

func NextID(idWorker *sonyflake.Sonyflake) types.ID {
	id, err := idWorker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

func machineID() (uint16, error) {
	if v := os.Getenv("SONYFLAKE_MACHINE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, err
		}
		return uint16(id), nil
	}
	if ip, err := privateIPv4(); err == nil {
		return uint16(ip[2])<<8 + uint16(ip[3]), nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return 0, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))
	return uint16(h.Sum32()), nil
}

func privateIPv4() (net.IP, error) {
	as, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range as {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip := ipnet.IP.To4()
		if ip != nil && (ip[0] == 10 || ip[0] == 172 && (ip[1] >= 16 && ip[1] < 32) || ip[0] == 192 && ip[1] == 168) {
			return ip, nil
		}
	}
	return nil, errors.New("no private ip address")
}

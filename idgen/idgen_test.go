package idgen

import (
	"os"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestNextID(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should generate increasing ids", func(t *testing.T) {
		worker := NewWorker()
		Expect(worker).ToNot(BeNil())
		var last types.ID
		for i := 0; i < 100; i++ {
			id := NextID(worker)
			Expect(id > last).To(BeTrue())
			last = id
		}
	})
}

func TestMachineID(t *testing.T) {
	RegisterTestingT(t)
	defer os.Unsetenv("SONYFLAKE_MACHINE_ID")

	t.Run("should prefer the configured machine id", func(t *testing.T) {
		Expect(os.Setenv("SONYFLAKE_MACHINE_ID", "42")).To(Succeed())
		id, err := machineID()
		Expect(err).To(BeNil())
		Expect(id).To(Equal(uint16(42)))

		Expect(os.Setenv("SONYFLAKE_MACHINE_ID", "70000")).To(Succeed())
		_, err = machineID()
		Expect(err).ToNot(BeNil())
	})

	t.Run("should derive a machine id from the host", func(t *testing.T) {
		Expect(os.Unsetenv("SONYFLAKE_MACHINE_ID")).To(Succeed())
		_, err := machineID()
		Expect(err).To(BeNil())
	})
}

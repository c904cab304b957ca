package state_test

import (
	"errors"
	"pneumatic/bizerror"
	"pneumatic/domain/state"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StateMachine", func() {
	var (
		stateMachine *state.StateMachine
	)

	BeforeEach(func() {
		//         PENDING      DOING         DONE
		// PENDING   -            V (begin)   V (close)
		// DOING     V (cancel)   -           V (finish)
		// DONE      V (reopen)   X			  -
		stateMachine = state.NewStateMachine("demo",
			[]state.State{{Name: "PENDING"}, {Name: "DOING", Category: state.InProcess}, {Name: "DONE", Category: state.Done}},
			[]state.Transition{
				{Name: "begin", From: state.State{Name: "PENDING"}, To: state.State{Name: "DOING", Category: state.InProcess}},
				{Name: "close", From: state.State{Name: "PENDING"}, To: state.State{Name: "DONE", Category: state.Done}},
				{Name: "cancel", From: state.State{Name: "DOING", Category: state.InProcess}, To: state.State{Name: "PENDING"}},
				{Name: "finish", From: state.State{Name: "DOING", Category: state.InProcess}, To: state.State{Name: "DONE", Category: state.Done}},
				{Name: "reopen", From: state.State{Name: "DONE", Category: state.Done}, To: state.State{Name: "PENDING"}},
			})
	})

	Describe("AvailableTransitions", func() {
		Context("With given PENDING-DOING-DONE states and transitions", func() {
			It("should return availableTransitions as expected", func() {
				Ω(stateMachine.AvailableTransitions("PENDING", "")).Should(HaveLen(2))
				Ω(stateMachine.AvailableTransitions("DOING", "DONE")).Should(Equal([]state.Transition{
					{Name: "finish", From: state.State{Name: "DOING", Category: state.InProcess}, To: state.State{Name: "DONE", Category: state.Done}},
				}))
				Ω(stateMachine.AvailableTransitions("", "PENDING")).Should(HaveLen(2))
				Ω(stateMachine.AvailableTransitions("UNKNOWN", "")).Should(BeEmpty())
			})
		})
	})

	Describe("Check", func() {
		It("should accept declared transitions and staying in a known state", func() {
			Expect(stateMachine.Check("PENDING", "DOING")).To(Succeed())
			Expect(stateMachine.Check("DONE", "PENDING")).To(Succeed())
			Expect(stateMachine.Check("DOING", "DOING")).To(Succeed())
		})

		It("should reject undeclared transitions", func() {
			err := stateMachine.Check("DONE", "DOING")
			Expect(errors.Is(err, bizerror.ErrInvalidTransition)).To(BeTrue())
			Expect(err.Error()).To(Equal("demo DONE -> DOING: invalid state transition"))

			Expect(errors.Is(stateMachine.Check("UNKNOWN", "UNKNOWN"), bizerror.ErrInvalidTransition)).To(BeTrue())
			Expect(errors.Is(stateMachine.Check("", "DOING"), bizerror.ErrInvalidTransition)).To(BeTrue())
		})
	})

	Describe("State", func() {
		It("should find states by name", func() {
			s, found := stateMachine.State("DONE")
			Expect(found).To(BeTrue())
			Expect(s.Category).To(Equal(state.Done))

			_, found = stateMachine.State("UNKNOWN")
			Expect(found).To(BeFalse())
		})
	})
})

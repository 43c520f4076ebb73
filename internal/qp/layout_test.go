package qp

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
)

func TestNewLayoutBlocks(t *testing.T) {
	g := NewWithT(t)

	l, err := NewLayout([]int{6, 0, 3}, nil)
	g.Expect(err).NotTo(HaveOccurred())

	tests := []struct {
		robot int
		want  Block
	}{
		{0, Block{Robot: 0, Begin: 0, Len: 6}},
		{1, Block{Robot: 1, Begin: 6, Len: 0}},
		{2, Block{Robot: 2, Begin: 6, Len: 3}},
	}
	for _, tt := range tests {
		b, err := l.Robot(tt.robot)
		if err != nil {
			t.Fatalf("robot %d: %v", tt.robot, err)
		}
		if b != tt.want {
			t.Errorf("robot %d: got %+v, want %+v", tt.robot, b, tt.want)
		}
	}

	g.Expect(l.TotalAlphaD()).To(Equal(9))
	g.Expect(l.NrVars()).To(Equal(9))
	g.Expect(l.NrRobots()).To(Equal(3))

	_, err = l.Robot(3)
	g.Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())
}

func TestNewLayoutContacts(t *testing.T) {
	g := NewWithT(t)

	id := ContactID{R1: 0, R2: 1, Body1: "hand", Body2: "ground"}
	c := Contact{
		ID:     id,
		Points: []r3.Vector{{X: 1}, {X: 2}},
		Generators: [][]r3.Vector{
			{{Z: 1}, {X: 0.5, Z: 1}},
			{{Z: 1}},
		},
	}

	l, err := NewLayout([]int{2, 3}, []Contact{c})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(l.LambdaBegin()).To(Equal(5))
	g.Expect(l.NrVars()).To(Equal(8))

	cb, err := l.Contact(id)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cb.Begin).To(Equal(5))
	g.Expect(cb.Len).To(Equal(3))
	g.Expect(cb.Points).To(Equal([]r3.Vector{{X: 1}, {X: 1}, {X: 2}}))
	g.Expect(cb.Generators[1]).To(Equal(r3.Vector{X: 0.5, Z: 1}))

	_, err = l.Contact(ContactID{R1: 3})
	g.Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())
}

func TestNewLayoutInvalid(t *testing.T) {
	id := ContactID{Body1: "a", Body2: "b"}
	tests := []struct {
		name     string
		dofs     []int
		contacts []Contact
	}{
		{"negative dof", []int{-1}, nil},
		{"duplicate contact", []int{1}, []Contact{{ID: id}, {ID: id}}},
		{"points without generators", []int{1}, []Contact{{ID: id, Points: []r3.Vector{{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.dofs, tt.contacts)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestLayoutGenerationIsFresh(t *testing.T) {
	a, err := NewLayout([]int{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLayout([]int{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Generation() == b.Generation() {
		t.Errorf("layouts share generation %d", a.Generation())
	}
	if b.Generation() <= a.Generation() {
		t.Errorf("generation not increasing: %d then %d", a.Generation(), b.Generation())
	}
}

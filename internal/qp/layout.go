package qp

import (
	"fmt"

	"github.com/golang/geo/r3"
	"go.uber.org/atomic"
)

var generations atomic.Uint64

// Block is a contiguous range of the decision vector owned by one robot.
type Block struct {
	Robot int
	Begin int
	Len   int
}

// End returns the index one past the last column of the block.
func (b Block) End() int { return b.Begin + b.Len }

// ContactID identifies a contact between a body of robot R1 and a body of
// robot R2.
type ContactID struct {
	R1, R2       int
	Body1, Body2 string
}

func (id ContactID) String() string {
	return fmt.Sprintf("%d:%s/%d:%s", id.R1, id.Body1, id.R2, id.Body2)
}

// Contact describes the force variables of one contact. Each point carries
// its own set of cone generators; the contact force is the sum of
// generator_i * lambda_i over every generator of every point.
type Contact struct {
	ID         ContactID
	Points     []r3.Vector
	Generators [][]r3.Vector
}

// NrLambda is the number of force variables the contact adds.
func (c Contact) NrLambda() int {
	n := 0
	for _, g := range c.Generators {
		n += len(g)
	}
	return n
}

// ContactBlock locates a contact's lambda variables in the decision vector.
// Points and Generators are flattened so that column i of the block is
// Generators[i] applied at Points[i].
type ContactBlock struct {
	ID         ContactID
	Begin      int
	Len        int
	Points     []r3.Vector
	Generators []r3.Vector
}

// Layout maps robots and contacts to ranges of the decision vector.
type Layout struct {
	robots     []Block
	contacts   []ContactBlock
	alphaD     int
	nrVars     int
	generation uint64
}

// NewLayout builds a layout from the dof count of every robot and the
// contacts that add force variables.
func NewLayout(dofs []int, contacts []Contact) (*Layout, error) {
	l := &Layout{
		robots:     make([]Block, len(dofs)),
		contacts:   make([]ContactBlock, 0, len(contacts)),
		generation: generations.Inc(),
	}

	begin := 0
	for i, d := range dofs {
		if d < 0 {
			return nil, Invalid("robot %d has negative dof count %d", i, d)
		}
		l.robots[i] = Block{Robot: i, Begin: begin, Len: d}
		begin += d
	}
	l.alphaD = begin

	seen := make(map[ContactID]bool, len(contacts))
	for _, c := range contacts {
		if seen[c.ID] {
			return nil, Invalid("duplicate contact %s", c.ID)
		}
		seen[c.ID] = true
		if len(c.Points) != len(c.Generators) {
			return nil, Invalid("contact %s has %d points but %d generator sets",
				c.ID, len(c.Points), len(c.Generators))
		}

		cb := ContactBlock{ID: c.ID, Begin: begin, Len: c.NrLambda()}
		for i, gens := range c.Generators {
			for _, g := range gens {
				cb.Points = append(cb.Points, c.Points[i])
				cb.Generators = append(cb.Generators, g)
			}
		}
		l.contacts = append(l.contacts, cb)
		begin += cb.Len
	}
	l.nrVars = begin

	return l, nil
}

// Generation identifies this layout. Two layouts never share a generation.
func (l *Layout) Generation() uint64 { return l.generation }

// NrRobots returns the number of robot blocks.
func (l *Layout) NrRobots() int { return len(l.robots) }

// Robot returns the block of robot i.
func (l *Layout) Robot(i int) (Block, error) {
	if i < 0 || i >= len(l.robots) {
		return Block{}, Invalid("robot index %d outside layout of %d robots", i, len(l.robots))
	}
	return l.robots[i], nil
}

// Contact returns the lambda block of the contact with the given id.
func (l *Layout) Contact(id ContactID) (ContactBlock, error) {
	for _, c := range l.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return ContactBlock{}, Invalid("unknown contact %s", id)
}

// Contacts returns every contact block in decision-vector order.
func (l *Layout) Contacts() []ContactBlock { return l.contacts }

// TotalAlphaD is the number of joint acceleration variables.
func (l *Layout) TotalAlphaD() int { return l.alphaD }

// LambdaBegin is the index of the first contact force variable.
func (l *Layout) LambdaBegin() int { return l.alphaD }

// NrVars is the length of the decision vector.
func (l *Layout) NrVars() int { return l.nrVars }

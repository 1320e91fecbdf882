// Package kinematic is a deterministic joint-space simulator. It integrates
// joint velocities directly without contacts or dynamics, which makes
// replays bit-for-bit reproducible.
package kinematic

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Joint is a hinge joint driven by one motor.
type Joint struct {
	Name  string
	Range [2]float64
	Gear  float64
}

// Body is a static scene body reported in observations as <name>_pos.
type Body struct {
	Name string
	Pos  [3]float64
}

// Model is the parsed scene.
type Model struct {
	Name   string
	Joints []Joint
	Bodies []Body
}

type xmlJoint struct {
	Name  string `xml:"name,attr"`
	Range string `xml:"range,attr"`
}

type xmlBody struct {
	Name   string     `xml:"name,attr"`
	Pos    string     `xml:"pos,attr"`
	Joints []xmlJoint `xml:"joint"`
	Bodies []xmlBody  `xml:"body"`
}

type xmlMotor struct {
	Joint string `xml:"joint,attr"`
	Gear  string `xml:"gear,attr"`
}

type xmlModel struct {
	XMLName   xml.Name   `xml:"mujoco"`
	Model     string     `xml:"model,attr"`
	Worldbody xmlBody    `xml:"worldbody"`
	Motors    []xmlMotor `xml:"actuator>motor"`
}

// ParseModel reads the MJCF subset the simulator understands: nested
// worldbody bodies with hinge joints and actuator motors with a gear.
// Bodies without joints in their subtree are scene objects.
func ParseModel(doc string) (*Model, error) {
	var x xmlModel
	if err := xml.Unmarshal([]byte(doc), &x); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	m := &Model{Name: x.Model}
	for _, b := range x.Worldbody.Bodies {
		if err := m.addBody(b); err != nil {
			return nil, err
		}
	}
	gears := make(map[string]float64, len(x.Motors))
	for _, mo := range x.Motors {
		g := 1.0
		if mo.Gear != "" {
			f, err := parseFloats(mo.Gear, 1)
			if err != nil {
				return nil, fmt.Errorf("motor %s gear: %w", mo.Joint, err)
			}
			g = f[0]
		}
		gears[mo.Joint] = g
	}
	for i := range m.Joints {
		if g, ok := gears[m.Joints[i].Name]; ok {
			m.Joints[i].Gear = g
		}
	}
	return m, nil
}

func (m *Model) addBody(b xmlBody) error {
	if !hasJoints(b) {
		body := Body{Name: b.Name}
		if b.Pos != "" {
			p, err := parseFloats(b.Pos, 3)
			if err != nil {
				return fmt.Errorf("body %s pos: %w", b.Name, err)
			}
			copy(body.Pos[:], p)
		}
		m.Bodies = append(m.Bodies, body)
		return nil
	}
	for _, j := range b.Joints {
		joint := Joint{Name: j.Name, Range: [2]float64{-3.14, 3.14}, Gear: 1}
		if j.Range != "" {
			r, err := parseFloats(j.Range, 2)
			if err != nil {
				return fmt.Errorf("joint %s range: %w", j.Name, err)
			}
			joint.Range = [2]float64{r[0], r[1]}
		}
		m.Joints = append(m.Joints, joint)
	}
	for _, c := range b.Bodies {
		if err := m.addBody(c); err != nil {
			return err
		}
	}
	return nil
}

func hasJoints(b xmlBody) bool {
	if len(b.Joints) > 0 {
		return true
	}
	for _, c := range b.Bodies {
		if hasJoints(c) {
			return true
		}
	}
	return false
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("want %d numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DefaultXML is the scene used until a scene description is loaded: a
// seven joint arm, an object and a container.
const DefaultXML = `<mujoco model="kitchen">
  <worldbody>
    <body name="robot0_base" pos="0 0 0.9">
      <joint name="robot0_joint1" range="-2.9 2.9"/>
      <body name="robot0_link1">
        <joint name="robot0_joint2" range="-1.76 1.76"/>
        <body name="robot0_link2">
          <joint name="robot0_joint3" range="-2.9 2.9"/>
          <joint name="robot0_joint4" range="-3.07 -0.07"/>
          <body name="robot0_link4">
            <joint name="robot0_joint5" range="-2.9 2.9"/>
            <joint name="robot0_joint6" range="-0.02 3.75"/>
            <joint name="robot0_joint7" range="-2.9 2.9"/>
          </body>
        </body>
      </body>
    </body>
    <body name="obj" pos="0.55 -0.1 0.92"/>
    <body name="container" pos="0.6 0.25 0.9"/>
  </worldbody>
  <actuator>
    <motor joint="robot0_joint1" gear="1"/>
    <motor joint="robot0_joint2" gear="1"/>
    <motor joint="robot0_joint3" gear="1"/>
    <motor joint="robot0_joint4" gear="1"/>
    <motor joint="robot0_joint5" gear="1"/>
    <motor joint="robot0_joint6" gear="1"/>
    <motor joint="robot0_joint7" gear="1"/>
  </actuator>
</mujoco>`

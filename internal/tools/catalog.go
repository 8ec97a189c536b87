// Package tools provides the built-in talent development tools registered
// with the loop runtime.
package tools

import (
	"fmt"
	"sort"
)

// Skill is a named capability at a proficiency level (1 to 5).
type Skill struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Role describes a target role and the proficiency it requires.
type Role struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	RequiredSkills []Skill `json:"requiredSkills"`
}

// Profile is an employee's current skill set.
type Profile struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	RoleID string  `json:"roleId"`
	Skills []Skill `json:"skills"`
}

// Course is a learning resource that raises one skill to a level.
type Course struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	SkillID string `json:"skillId"`
	Level   int    `json:"level"`
	Weeks   int    `json:"weeks"`
}

// Gap is the distance between a profile's proficiency and a role's bar.
type Gap struct {
	SkillID       string `json:"skillId"`
	SkillName     string `json:"skillName"`
	CurrentLevel  int    `json:"currentLevel"`
	RequiredLevel int    `json:"requiredLevel"`
}

// Directory is the in-memory talent catalog the built-in tools read.
// Production deployments replace the demo seed with their own data.
type Directory struct {
	roles    map[string]Role
	profiles map[string]Profile
	courses  map[string][]Course
	related  map[string][]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		roles:    map[string]Role{},
		profiles: map[string]Profile{},
		courses:  map[string][]Course{},
		related:  map[string][]string{},
	}
}

// NewDemoDirectory seeds a small engineering catalog for local runs and
// tests.
func NewDemoDirectory() *Directory {
	d := NewDirectory()

	d.AddRole(Role{
		ID:   "senior-backend",
		Name: "Senior Backend Engineer",
		RequiredSkills: []Skill{
			{ID: "go", Name: "Go", Level: 4},
			{ID: "kubernetes", Name: "Kubernetes", Level: 3},
			{ID: "grpc", Name: "gRPC", Level: 3},
			{ID: "sql", Name: "SQL", Level: 3},
		},
	})
	d.AddRole(Role{
		ID:   "platform-lead",
		Name: "Platform Lead",
		RequiredSkills: []Skill{
			{ID: "kubernetes", Name: "Kubernetes", Level: 4},
			{ID: "terraform", Name: "Terraform", Level: 3},
			{ID: "mentoring", Name: "Mentoring", Level: 3},
		},
	})

	d.AddProfile(Profile{
		ID:     "p-ada",
		Name:   "Ada",
		RoleID: "senior-backend",
		Skills: []Skill{
			{ID: "go", Name: "Go", Level: 4},
			{ID: "sql", Name: "SQL", Level: 3},
			{ID: "kubernetes", Name: "Kubernetes", Level: 1},
		},
	})

	d.AddCourse(Course{ID: "c-k8s-201", Title: "Kubernetes in Production", SkillID: "kubernetes", Level: 3, Weeks: 6})
	d.AddCourse(Course{ID: "c-k8s-301", Title: "Operating Large Clusters", SkillID: "kubernetes", Level: 4, Weeks: 8})
	d.AddCourse(Course{ID: "c-grpc-101", Title: "gRPC Services in Go", SkillID: "grpc", Level: 3, Weeks: 4})
	d.AddCourse(Course{ID: "c-tf-201", Title: "Infrastructure as Code", SkillID: "terraform", Level: 3, Weeks: 5})

	d.Relate("kubernetes", "terraform", "helm")
	d.Relate("grpc", "protobuf", "api-design")
	d.Relate("go", "concurrency", "grpc")

	return d
}

// AddRole registers or replaces a role.
func (d *Directory) AddRole(role Role) {
	d.roles[role.ID] = role
}

// AddProfile registers or replaces a profile.
func (d *Directory) AddProfile(profile Profile) {
	d.profiles[profile.ID] = profile
}

// AddCourse registers a course under its skill.
func (d *Directory) AddCourse(course Course) {
	d.courses[course.SkillID] = append(d.courses[course.SkillID], course)
}

// Relate records adjacent skills used for recommendations.
func (d *Directory) Relate(skillID string, related ...string) {
	d.related[skillID] = append(d.related[skillID], related...)
}

// Role looks up a role by id.
func (d *Directory) Role(id string) (Role, error) {
	role, ok := d.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role '%s' not found", id)
	}
	return role, nil
}

// Profile looks up a profile by id.
func (d *Directory) Profile(id string) (Profile, error) {
	profile, ok := d.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("profile '%s' not found", id)
	}
	return profile, nil
}

// GapsFor computes the skills where the profile sits below the role's
// requirement, sorted by widest gap first.
func (d *Directory) GapsFor(profileID, roleID string) ([]Gap, error) {
	profile, err := d.Profile(profileID)
	if err != nil {
		return nil, err
	}
	role, err := d.Role(roleID)
	if err != nil {
		return nil, err
	}

	current := make(map[string]int, len(profile.Skills))
	for _, skill := range profile.Skills {
		current[skill.ID] = skill.Level
	}

	var gaps []Gap
	for _, required := range role.RequiredSkills {
		have := current[required.ID]
		if have < required.Level {
			gaps = append(gaps, Gap{
				SkillID:       required.ID,
				SkillName:     required.Name,
				CurrentLevel:  have,
				RequiredLevel: required.Level,
			})
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		di := gaps[i].RequiredLevel - gaps[i].CurrentLevel
		dj := gaps[j].RequiredLevel - gaps[j].CurrentLevel
		if di != dj {
			return di > dj
		}
		return gaps[i].SkillID < gaps[j].SkillID
	})
	return gaps, nil
}

// CoursesFor returns courses covering the given skill, ordered by target
// level.
func (d *Directory) CoursesFor(skillID string) []Course {
	courses := append([]Course(nil), d.courses[skillID]...)
	sort.SliceStable(courses, func(i, j int) bool {
		return courses[i].Level < courses[j].Level
	})
	return courses
}

// RelatedSkills returns the adjacency list for a skill, deduplicated and
// sorted.
func (d *Directory) RelatedSkills(skillID string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range d.related[skillID] {
		if !seen[id] && id != skillID {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

package intra

import "time"

// Peer is an intranet user profile. Location is empty when the peer is
// not logged in at any campus workstation.
type Peer struct {
	ID          int    `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"displayname"`
	Location    string `json:"location"`
	PoolMonth   string `json:"pool_month"`
	PoolYear    string `json:"pool_year"`
}

// Campus is a school campus.
type Campus struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"time_zone"`
}

// Cursus is a study track.
type Cursus struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Coalition is a peer's coalition.
type Coalition struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Score int    `json:"score"`
}

// CoalitionUser links a peer to a coalition.
type CoalitionUser struct {
	ID          int `json:"id"`
	CoalitionID int `json:"coalition_id"`
	UserID      int `json:"user_id"`
}

// Location is one workstation session.
type Location struct {
	ID       int        `json:"id"`
	Host     string     `json:"host"`
	CampusID int        `json:"campus_id"`
	BeginAt  time.Time  `json:"begin_at"`
	EndAt    *time.Time `json:"end_at"`
}

// Event is an upcoming campus event. Exams are folded into the same
// shape with Kind "exam".
type Event struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	BeginAt     time.Time `json:"begin_at"`
	EndAt       time.Time `json:"end_at"`
}

// Exam is an upcoming exam as returned by the exams endpoint.
type Exam struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	BeginAt time.Time `json:"begin_at"`
	EndAt   time.Time `json:"end_at"`
}

// AsEvent converts an exam to the shared event shape.
func (e Exam) AsEvent() Event {
	return Event{
		ID:      e.ID,
		Name:    e.Name,
		Kind:    "exam",
		BeginAt: e.BeginAt,
		EndAt:   e.EndAt,
	}
}

// Feedback is one evaluation performed by a peer as corrector.
type Feedback struct {
	ID        int    `json:"id"`
	Comment   string `json:"comment"`
	FinalMark *int   `json:"final_mark"`
}

// Project is a cursus project.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/core/user"
)

// DB is an in-memory store. One lock guards every table so that
// cross-table operations (enroll, cascade delete) are atomic.
type DB struct {
	mutex       sync.RWMutex
	users       map[string]*user.User
	courses     map[string]*course.Course
	enrollments map[string]*enrollment.Enrollment // by enrollmentKey(userID, courseID)
}

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		courses:     make(map[string]*course.Course),
		enrollments: make(map[string]*enrollment.Enrollment),
	}
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = make(map[string]*user.User)
	db.courses = make(map[string]*course.Course)
	db.enrollments = make(map[string]*enrollment.Enrollment)
}

func newID() string { return uuid.NewString() }

func enrollmentKey(userID, courseID string) string { return userID + "/" + courseID }

func copyStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append(make([]string, 0, len(ss)), ss...)
}

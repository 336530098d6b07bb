package inmemdb

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/admin"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/student"
)

var errUserRequired = errors.New("user does not exist")

// students

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	err := repo.db.write(func(t *tables) error {
		usr, ok := t.users[st.UserID]
		if !ok {
			return errUserRequired
		}
		for _, other := range t.students {
			if other.UserID == st.UserID || other.StudentNumber == st.StudentNumber {
				return errors.New("duplicate student")
			}
		}
		st.User = usr
		t.students[st.ID] = st
		return nil
	})
	return st, err
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.students[st.ID]; !ok {
			return student.ErrNotFound
		}
		st.User = t.users[st.UserID]
		t.students[st.ID] = st
		return nil
	})
	return st, err
}

func (repo *studentRepository) find(match func(st student.Student) bool) (student.Student, error) {
	var (
		found student.Student
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, st := range t.students {
			if st.DeletedAt == nil && match(st) {
				st.User = t.users[st.UserID]
				found, ok = st, true
				return
			}
		}
	})
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return found, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.find(func(st student.Student) bool { return st.ID == id })
}

func (repo *studentRepository) GetStudentByUserID(ctx context.Context, userID string) (student.Student, error) {
	return repo.find(func(st student.Student) bool { return st.UserID == userID })
}

func studentField(st student.Student, col string) interface{} {
	switch col {
	case "student_number":
		return st.StudentNumber
	case "name":
		return st.User.Name
	case "email":
		return st.User.Email
	case "status":
		return st.Status
	case "enrollment_date":
		return st.EnrollmentDate
	case "created_at":
		return st.CreatedAt
	}
	return nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, pq core.PageQuery) (core.Page[student.Student], error) {
	var total int
	rows := make([]student.Student, 0)
	repo.db.read(func(t *tables) {
		for _, st := range t.students {
			if st.DeletedAt != nil {
				continue
			}
			if filter.ProgramID != "" && (st.ProgramID == nil || *st.ProgramID != filter.ProgramID) {
				continue
			}
			if filter.Status != "" && st.Status != filter.Status {
				continue
			}
			total++
			st.User = t.users[st.UserID]
			if matchesAny(pq.Search, st.StudentNumber, st.User.Name, st.User.Email) {
				rows = append(rows, st)
			}
		}
	})
	sortRows(rows, pq.Orderings, studentField)
	return page(total, rows, pq), nil
}

func (repo *studentRepository) CountStudentNumbers(ctx context.Context, prefix string) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, st := range t.students {
			if strings.HasPrefix(st.StudentNumber, prefix) {
				count++
			}
		}
	})
	return count, nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, filter student.CountFilter) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, st := range t.students {
			if st.DeletedAt != nil {
				continue
			}
			if filter.Status != "" && st.Status != filter.Status {
				continue
			}
			if !filter.CreatedAfter.IsZero() && st.CreatedAt.Before(filter.CreatedAfter) {
				continue
			}
			count++
		}
	})
	return count, nil
}

func (repo *studentRepository) CountStudentsByProgram(ctx context.Context, programIDs ...string) (map[string]int, error) {
	wanted := idSet(programIDs)
	counts := make(map[string]int, len(programIDs))
	repo.db.read(func(t *tables) {
		for _, st := range t.students {
			if !st.IsActive() || st.ProgramID == nil || !wanted[*st.ProgramID] {
				continue
			}
			counts[*st.ProgramID]++
		}
	})
	return counts, nil
}

// instructors

type instructorRepository struct {
	db *DB
}

func NewInstructorRepository(db *DB) instructor.Repository {
	return &instructorRepository{db: db}
}

func (repo *instructorRepository) CreateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	err := repo.db.write(func(t *tables) error {
		usr, ok := t.users[ins.UserID]
		if !ok {
			return errUserRequired
		}
		for _, other := range t.instructors {
			if other.UserID == ins.UserID || other.EmployeeNumber == ins.EmployeeNumber {
				return errors.New("duplicate instructor")
			}
		}
		ins.User = usr
		t.instructors[ins.ID] = ins
		return nil
	})
	return ins, err
}

func (repo *instructorRepository) UpdateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.instructors[ins.ID]; !ok {
			return instructor.ErrNotFound
		}
		ins.User = t.users[ins.UserID]
		t.instructors[ins.ID] = ins
		return nil
	})
	return ins, err
}

func (repo *instructorRepository) find(match func(ins instructor.Instructor) bool) (instructor.Instructor, error) {
	var (
		found instructor.Instructor
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, ins := range t.instructors {
			if ins.DeletedAt == nil && match(ins) {
				ins.User = t.users[ins.UserID]
				found, ok = ins, true
				return
			}
		}
	})
	if !ok {
		return instructor.Instructor{}, instructor.ErrNotFound
	}
	return found, nil
}

func (repo *instructorRepository) GetInstructor(ctx context.Context, id string) (instructor.Instructor, error) {
	return repo.find(func(ins instructor.Instructor) bool { return ins.ID == id })
}

func (repo *instructorRepository) GetInstructorByUserID(ctx context.Context, userID string) (instructor.Instructor, error) {
	return repo.find(func(ins instructor.Instructor) bool { return ins.UserID == userID })
}

func (repo *instructorRepository) GetInstructorsByID(ctx context.Context, ids ...string) ([]instructor.Instructor, error) {
	list := make([]instructor.Instructor, 0, len(ids))
	repo.db.read(func(t *tables) {
		for _, id := range ids {
			if ins, ok := t.instructors[id]; ok && ins.DeletedAt == nil {
				ins.User = t.users[ins.UserID]
				list = append(list, ins)
			}
		}
	})
	return list, nil
}

func instructorField(ins instructor.Instructor, col string) interface{} {
	switch col {
	case "employee_number":
		return ins.EmployeeNumber
	case "name":
		return ins.User.Name
	case "email":
		return ins.User.Email
	case "status":
		return ins.Status
	case "created_at":
		return ins.CreatedAt
	}
	return nil
}

func (repo *instructorRepository) QueryInstructors(ctx context.Context, filter instructor.QueryFilter, pq core.PageQuery) (core.Page[instructor.Instructor], error) {
	var total int
	rows := make([]instructor.Instructor, 0)
	repo.db.read(func(t *tables) {
		for _, ins := range t.instructors {
			if ins.DeletedAt != nil {
				continue
			}
			if filter.DepartmentID != "" && (ins.DepartmentID == nil || *ins.DepartmentID != filter.DepartmentID) {
				continue
			}
			if filter.Status != "" && ins.Status != filter.Status {
				continue
			}
			total++
			ins.User = t.users[ins.UserID]
			if matchesAny(pq.Search, ins.EmployeeNumber, ins.User.Name, ins.User.Email) {
				rows = append(rows, ins)
			}
		}
	})
	sortRows(rows, pq.Orderings, instructorField)
	return page(total, rows, pq), nil
}

func (repo *instructorRepository) CountEmployeeNumbers(ctx context.Context, prefix string) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, ins := range t.instructors {
			if strings.HasPrefix(ins.EmployeeNumber, prefix) {
				count++
			}
		}
	})
	return count, nil
}

func (repo *instructorRepository) CountInstructors(ctx context.Context, filter instructor.CountFilter) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, ins := range t.instructors {
			if ins.DeletedAt != nil {
				continue
			}
			if filter.Status != "" && ins.Status != filter.Status {
				continue
			}
			if !filter.CreatedAfter.IsZero() && ins.CreatedAt.Before(filter.CreatedAfter) {
				continue
			}
			count++
		}
	})
	return count, nil
}

// admins

type adminRepository struct {
	db *DB
}

func NewAdminRepository(db *DB) admin.Repository {
	return &adminRepository{db: db}
}

func (repo *adminRepository) CreateAdmin(ctx context.Context, adm admin.Admin) (admin.Admin, error) {
	err := repo.db.write(func(t *tables) error {
		usr, ok := t.users[adm.UserID]
		if !ok {
			return errUserRequired
		}
		for _, other := range t.admins {
			if other.UserID == adm.UserID {
				return errors.New("duplicate admin")
			}
		}
		adm.User = usr
		t.admins[adm.ID] = adm
		return nil
	})
	return adm, err
}

func (repo *adminRepository) UpdateAdmin(ctx context.Context, adm admin.Admin) (admin.Admin, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.admins[adm.ID]; !ok {
			return admin.ErrNotFound
		}
		adm.User = t.users[adm.UserID]
		t.admins[adm.ID] = adm
		return nil
	})
	return adm, err
}

func (repo *adminRepository) find(match func(adm admin.Admin) bool) (admin.Admin, error) {
	var (
		found admin.Admin
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, adm := range t.admins {
			if adm.DeletedAt == nil && match(adm) {
				adm.User = t.users[adm.UserID]
				found, ok = adm, true
				return
			}
		}
	})
	if !ok {
		return admin.Admin{}, admin.ErrNotFound
	}
	return found, nil
}

func (repo *adminRepository) GetAdmin(ctx context.Context, id string) (admin.Admin, error) {
	return repo.find(func(adm admin.Admin) bool { return adm.ID == id })
}

func (repo *adminRepository) GetAdminByUserID(ctx context.Context, userID string) (admin.Admin, error) {
	return repo.find(func(adm admin.Admin) bool { return adm.UserID == userID })
}

func adminField(adm admin.Admin, col string) interface{} {
	switch col {
	case "name":
		return adm.User.Name
	case "email":
		return adm.User.Email
	case "created_at":
		return adm.CreatedAt
	}
	return nil
}

func (repo *adminRepository) QueryAdmins(ctx context.Context, pq core.PageQuery) (core.Page[admin.Admin], error) {
	var total int
	rows := make([]admin.Admin, 0)
	repo.db.read(func(t *tables) {
		for _, adm := range t.admins {
			if adm.DeletedAt != nil {
				continue
			}
			total++
			adm.User = t.users[adm.UserID]
			if matchesAny(pq.Search, adm.User.Name, adm.User.Email) {
				rows = append(rows, adm)
			}
		}
	})
	sortRows(rows, pq.Orderings, adminField)
	return page(total, rows, pq), nil
}

func (repo *adminRepository) CountAdmins(ctx context.Context, filter admin.CountFilter) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, adm := range t.admins {
			if adm.DeletedAt != nil {
				continue
			}
			if filter.ActiveOnly && !t.users[adm.UserID].IsActive {
				continue
			}
			if !filter.CreatedAfter.IsZero() && adm.CreatedAt.Before(filter.CreatedAfter) {
				continue
			}
			count++
		}
	})
	return count, nil
}

func (repo *adminRepository) CountSuperAdmins(ctx context.Context) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, adm := range t.admins {
			if adm.DeletedAt == nil && adm.IsSuper {
				count++
			}
		}
	})
	return count, nil
}

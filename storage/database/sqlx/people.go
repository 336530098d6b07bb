package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/admin"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/student"
)

// qualify prefixes each column with the table alias.
func qualify(alias string, columns ...string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = alias + "." + col
	}
	return out
}

func withUser(alias string, columns []string) []string {
	return append(qualify(alias, columns...), prefixed("u", "user")...)
}

// students

type studentRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	StudentNumber  string      `db:"student_number"`
	ProgramID      null.String `db:"program_id"`
	Phone          string      `db:"phone"`
	AvatarPath     string      `db:"avatar_path"`
	EnrollmentDate time.Time   `db:"enrollment_date"`
	Status         string      `db:"status"`
	CreatedBy      null.String `db:"created_by"`
	UpdatedBy      null.String `db:"updated_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	DeletedAt      null.Time   `db:"deleted_at"`
	User           userRow     `db:"user"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:             r.ID,
		UserID:         r.UserID,
		StudentNumber:  r.StudentNumber,
		ProgramID:      r.ProgramID.Ptr(),
		Phone:          r.Phone,
		AvatarPath:     r.AvatarPath,
		EnrollmentDate: r.EnrollmentDate.UTC(),
		Status:         r.Status,
		CreatedBy:      r.CreatedBy.Ptr(),
		UpdatedBy:      r.UpdatedBy.Ptr(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		DeletedAt:      r.DeletedAt.Ptr(),
		User:           r.User.toUser(),
	}
}

var (
	studentColumns  = []string{"id", "user_id", "student_number", "program_id", "phone", "avatar_path", "enrollment_date", "status", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}
	studentSortable = map[string]string{
		"student_number":  "s.student_number",
		"name":            "u.name",
		"email":           "u.email",
		"status":          "s.status",
		"enrollment_date": "s.enrollment_date",
		"created_at":      "s.created_at",
	}
)

type studentRepository struct {
	base
	users *userRepository
}

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{base: base{db: db}, users: &userRepository{base{db: db}}}
}

func studentValues(st student.Student) map[string]interface{} {
	return map[string]interface{}{
		"program_id":      nullableID(st.ProgramID),
		"phone":           st.Phone,
		"avatar_path":     st.AvatarPath,
		"enrollment_date": st.EnrollmentDate,
		"status":          st.Status,
		"updated_by":      nullableID(st.UpdatedBy),
		"updated_at":      st.UpdatedAt,
		"deleted_at":      null.TimeFromPtr(st.DeletedAt),
	}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	values := studentValues(st)
	values["id"] = st.ID
	values["user_id"] = st.UserID
	values["student_number"] = st.StudentNumber
	values["created_by"] = nullableID(st.CreatedBy)
	values["created_at"] = st.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("student").SetMap(values)); err != nil {
		return student.Student{}, err
	}
	usr, err := repo.users.GetUserByID(ctx, st.UserID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "loading student user")
	}
	st.User = usr
	return st, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	err := repo.execOne(ctx, psql.Update("student").SetMap(studentValues(st)).Where(sq.Eq{"id": st.ID}), student.ErrNotFound)
	return st, err
}

func (repo *studentRepository) selectStudents(columns ...string) sq.SelectBuilder {
	return psql.Select(columns...).From("student s").Join(`"user" u ON u.id = s.user_id`).Where(sq.Eq{"s.deleted_at": nil})
}

func (repo *studentRepository) getStudent(ctx context.Context, where sq.Sqlizer) (student.Student, error) {
	var row studentRow
	if err := repo.get(ctx, &row, repo.selectStudents(withUser("s", studentColumns)...).Where(where)); err != nil {
		if isNoRows(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, err
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.getStudent(ctx, sq.Eq{"s.id": id})
}

func (repo *studentRepository) GetStudentByUserID(ctx context.Context, userID string) (student.Student, error) {
	return repo.getStudent(ctx, sq.Eq{"s.user_id": userID})
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, pq core.PageQuery) (core.Page[student.Student], error) {
	where := sq.And{}
	if filter.ProgramID != "" {
		where = append(where, sq.Eq{"s.program_id": filter.ProgramID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"s.status": filter.Status})
	}

	var rows []studentRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return repo.selectStudents(columns...).Where(where)
		},
		search:   searchAny(pq.Search, "s.student_number", "u.name", "u.email"),
		columns:  withUser("s", studentColumns),
		sortable: studentSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[student.Student]{}, err
	}
	items := make([]student.Student, len(rows))
	for i, row := range rows {
		items[i] = row.toStudent()
	}
	return core.Page[student.Student]{Items: items, Total: total, Filtered: filtered}, nil
}

func (repo *studentRepository) CountStudentNumbers(ctx context.Context, prefix string) (int, error) {
	return repo.count(ctx, psql.Select("COUNT(*)").From("student").Where(sq.Like{"student_number": escapeLike(prefix) + "%"}))
}

func (repo *studentRepository) CountStudents(ctx context.Context, filter student.CountFilter) (int, error) {
	stmt := psql.Select("COUNT(*)").From("student").Where(sq.Eq{"deleted_at": nil})
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"created_at": filter.CreatedAfter})
	}
	return repo.count(ctx, stmt)
}

func (repo *studentRepository) CountStudentsByProgram(ctx context.Context, programIDs ...string) (map[string]int, error) {
	counts := make(map[string]int, len(programIDs))
	if len(programIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		ProgramID string `db:"program_id"`
		Count     int    `db:"count"`
	}
	stmt := psql.Select("program_id", "COUNT(*) AS count").From("student").
		Where(sq.Eq{"program_id": programIDs, "status": student.StatusActive, "deleted_at": nil}).
		GroupBy("program_id")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ProgramID] = row.Count
	}
	return counts, nil
}

// instructors

type instructorRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	EmployeeNumber string      `db:"employee_number"`
	DepartmentID   null.String `db:"department_id"`
	Title          string      `db:"title"`
	Phone          string      `db:"phone"`
	AvatarPath     string      `db:"avatar_path"`
	Status         string      `db:"status"`
	CreatedBy      null.String `db:"created_by"`
	UpdatedBy      null.String `db:"updated_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	DeletedAt      null.Time   `db:"deleted_at"`
	User           userRow     `db:"user"`
}

func (r instructorRow) toInstructor() instructor.Instructor {
	return instructor.Instructor{
		ID:             r.ID,
		UserID:         r.UserID,
		EmployeeNumber: r.EmployeeNumber,
		DepartmentID:   r.DepartmentID.Ptr(),
		Title:          r.Title,
		Phone:          r.Phone,
		AvatarPath:     r.AvatarPath,
		Status:         r.Status,
		CreatedBy:      r.CreatedBy.Ptr(),
		UpdatedBy:      r.UpdatedBy.Ptr(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		DeletedAt:      r.DeletedAt.Ptr(),
		User:           r.User.toUser(),
	}
}

var (
	instructorColumns  = []string{"id", "user_id", "employee_number", "department_id", "title", "phone", "avatar_path", "status", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}
	instructorSortable = map[string]string{
		"employee_number": "i.employee_number",
		"name":            "u.name",
		"email":           "u.email",
		"status":          "i.status",
		"created_at":      "i.created_at",
	}
)

type instructorRepository struct {
	base
	users *userRepository
}

func NewInstructorRepository(db *sqlx.DB) instructor.Repository {
	return &instructorRepository{base: base{db: db}, users: &userRepository{base{db: db}}}
}

func instructorValues(ins instructor.Instructor) map[string]interface{} {
	return map[string]interface{}{
		"department_id": nullableID(ins.DepartmentID),
		"title":         ins.Title,
		"phone":         ins.Phone,
		"avatar_path":   ins.AvatarPath,
		"status":        ins.Status,
		"updated_by":    nullableID(ins.UpdatedBy),
		"updated_at":    ins.UpdatedAt,
		"deleted_at":    null.TimeFromPtr(ins.DeletedAt),
	}
}

func (repo *instructorRepository) CreateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	values := instructorValues(ins)
	values["id"] = ins.ID
	values["user_id"] = ins.UserID
	values["employee_number"] = ins.EmployeeNumber
	values["created_by"] = nullableID(ins.CreatedBy)
	values["created_at"] = ins.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("instructor").SetMap(values)); err != nil {
		return instructor.Instructor{}, err
	}
	usr, err := repo.users.GetUserByID(ctx, ins.UserID)
	if err != nil {
		return instructor.Instructor{}, errors.Wrap(err, "loading instructor user")
	}
	ins.User = usr
	return ins, nil
}

func (repo *instructorRepository) UpdateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	err := repo.execOne(ctx, psql.Update("instructor").SetMap(instructorValues(ins)).Where(sq.Eq{"id": ins.ID}), instructor.ErrNotFound)
	return ins, err
}

func (repo *instructorRepository) selectInstructors(columns ...string) sq.SelectBuilder {
	return psql.Select(columns...).From("instructor i").Join(`"user" u ON u.id = i.user_id`).Where(sq.Eq{"i.deleted_at": nil})
}

func (repo *instructorRepository) listInstructors(ctx context.Context, where sq.Sqlizer) ([]instructor.Instructor, error) {
	var rows []instructorRow
	if err := repo.selectRows(ctx, &rows, repo.selectInstructors(withUser("i", instructorColumns)...).Where(where)); err != nil {
		return nil, err
	}
	list := make([]instructor.Instructor, len(rows))
	for i, row := range rows {
		list[i] = row.toInstructor()
	}
	return list, nil
}

func (repo *instructorRepository) getInstructor(ctx context.Context, where sq.Sqlizer) (instructor.Instructor, error) {
	list, err := repo.listInstructors(ctx, where)
	if err != nil {
		return instructor.Instructor{}, err
	}
	if len(list) == 0 {
		return instructor.Instructor{}, instructor.ErrNotFound
	}
	return list[0], nil
}

func (repo *instructorRepository) GetInstructor(ctx context.Context, id string) (instructor.Instructor, error) {
	return repo.getInstructor(ctx, sq.Eq{"i.id": id})
}

func (repo *instructorRepository) GetInstructorByUserID(ctx context.Context, userID string) (instructor.Instructor, error) {
	return repo.getInstructor(ctx, sq.Eq{"i.user_id": userID})
}

func (repo *instructorRepository) GetInstructorsByID(ctx context.Context, ids ...string) ([]instructor.Instructor, error) {
	if len(ids) == 0 {
		return []instructor.Instructor{}, nil
	}
	return repo.listInstructors(ctx, sq.Eq{"i.id": ids})
}

func (repo *instructorRepository) QueryInstructors(ctx context.Context, filter instructor.QueryFilter, pq core.PageQuery) (core.Page[instructor.Instructor], error) {
	where := sq.And{}
	if filter.DepartmentID != "" {
		where = append(where, sq.Eq{"i.department_id": filter.DepartmentID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"i.status": filter.Status})
	}

	var rows []instructorRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return repo.selectInstructors(columns...).Where(where)
		},
		search:   searchAny(pq.Search, "i.employee_number", "u.name", "u.email"),
		columns:  withUser("i", instructorColumns),
		sortable: instructorSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[instructor.Instructor]{}, err
	}
	items := make([]instructor.Instructor, len(rows))
	for i, row := range rows {
		items[i] = row.toInstructor()
	}
	return core.Page[instructor.Instructor]{Items: items, Total: total, Filtered: filtered}, nil
}

func (repo *instructorRepository) CountEmployeeNumbers(ctx context.Context, prefix string) (int, error) {
	return repo.count(ctx, psql.Select("COUNT(*)").From("instructor").Where(sq.Like{"employee_number": escapeLike(prefix) + "%"}))
}

func (repo *instructorRepository) CountInstructors(ctx context.Context, filter instructor.CountFilter) (int, error) {
	stmt := psql.Select("COUNT(*)").From("instructor").Where(sq.Eq{"deleted_at": nil})
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"created_at": filter.CreatedAfter})
	}
	return repo.count(ctx, stmt)
}

// admins

type adminRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	Phone      string      `db:"phone"`
	AvatarPath string      `db:"avatar_path"`
	IsSuper    bool        `db:"is_super"`
	CreatedBy  null.String `db:"created_by"`
	UpdatedBy  null.String `db:"updated_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
	DeletedAt  null.Time   `db:"deleted_at"`
	User       userRow     `db:"user"`
}

func (r adminRow) toAdmin() admin.Admin {
	return admin.Admin{
		ID:         r.ID,
		UserID:     r.UserID,
		Phone:      r.Phone,
		AvatarPath: r.AvatarPath,
		IsSuper:    r.IsSuper,
		CreatedBy:  r.CreatedBy.Ptr(),
		UpdatedBy:  r.UpdatedBy.Ptr(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
		DeletedAt:  r.DeletedAt.Ptr(),
		User:       r.User.toUser(),
	}
}

var (
	adminColumns  = []string{"id", "user_id", "phone", "avatar_path", "is_super", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}
	adminSortable = map[string]string{"name": "u.name", "email": "u.email", "created_at": "a.created_at"}
)

type adminRepository struct {
	base
	users *userRepository
}

func NewAdminRepository(db *sqlx.DB) admin.Repository {
	return &adminRepository{base: base{db: db}, users: &userRepository{base{db: db}}}
}

func adminValues(adm admin.Admin) map[string]interface{} {
	return map[string]interface{}{
		"phone":       adm.Phone,
		"avatar_path": adm.AvatarPath,
		"is_super":    adm.IsSuper,
		"updated_by":  nullableID(adm.UpdatedBy),
		"updated_at":  adm.UpdatedAt,
		"deleted_at":  null.TimeFromPtr(adm.DeletedAt),
	}
}

func (repo *adminRepository) CreateAdmin(ctx context.Context, adm admin.Admin) (admin.Admin, error) {
	values := adminValues(adm)
	values["id"] = adm.ID
	values["user_id"] = adm.UserID
	values["created_by"] = nullableID(adm.CreatedBy)
	values["created_at"] = adm.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("admin").SetMap(values)); err != nil {
		return admin.Admin{}, err
	}
	usr, err := repo.users.GetUserByID(ctx, adm.UserID)
	if err != nil {
		return admin.Admin{}, errors.Wrap(err, "loading admin user")
	}
	adm.User = usr
	return adm, nil
}

func (repo *adminRepository) UpdateAdmin(ctx context.Context, adm admin.Admin) (admin.Admin, error) {
	err := repo.execOne(ctx, psql.Update("admin").SetMap(adminValues(adm)).Where(sq.Eq{"id": adm.ID}), admin.ErrNotFound)
	return adm, err
}

func (repo *adminRepository) selectAdmins(columns ...string) sq.SelectBuilder {
	return psql.Select(columns...).From("admin a").Join(`"user" u ON u.id = a.user_id`).Where(sq.Eq{"a.deleted_at": nil})
}

func (repo *adminRepository) getAdmin(ctx context.Context, where sq.Sqlizer) (admin.Admin, error) {
	var row adminRow
	if err := repo.get(ctx, &row, repo.selectAdmins(withUser("a", adminColumns)...).Where(where)); err != nil {
		if isNoRows(err) {
			return admin.Admin{}, admin.ErrNotFound
		}
		return admin.Admin{}, err
	}
	return row.toAdmin(), nil
}

func (repo *adminRepository) GetAdmin(ctx context.Context, id string) (admin.Admin, error) {
	return repo.getAdmin(ctx, sq.Eq{"a.id": id})
}

func (repo *adminRepository) GetAdminByUserID(ctx context.Context, userID string) (admin.Admin, error) {
	return repo.getAdmin(ctx, sq.Eq{"a.user_id": userID})
}

func (repo *adminRepository) QueryAdmins(ctx context.Context, pq core.PageQuery) (core.Page[admin.Admin], error) {
	var rows []adminRow
	total, filtered, err := repo.paginate(ctx, listing{
		from:     repo.selectAdmins,
		search:   searchAny(pq.Search, "u.name", "u.email"),
		columns:  withUser("a", adminColumns),
		sortable: adminSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[admin.Admin]{}, err
	}
	items := make([]admin.Admin, len(rows))
	for i, row := range rows {
		items[i] = row.toAdmin()
	}
	return core.Page[admin.Admin]{Items: items, Total: total, Filtered: filtered}, nil
}

func (repo *adminRepository) CountAdmins(ctx context.Context, filter admin.CountFilter) (int, error) {
	stmt := repo.selectAdmins("COUNT(*)")
	if filter.ActiveOnly {
		stmt = stmt.Where(sq.Eq{"u.is_active": true})
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"a.created_at": filter.CreatedAfter})
	}
	return repo.count(ctx, stmt)
}

func (repo *adminRepository) CountSuperAdmins(ctx context.Context) (int, error) {
	return repo.count(ctx, psql.Select("COUNT(*)").From("admin").Where(sq.Eq{"is_super": true, "deleted_at": nil}))
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

const emailUniqueConstraint = "users_email_key"

var userColumns = []string{"id", "email", "password_hash", "role", "name", "bio", "avatar", "created_at", "updated_at"}

type userRow struct {
	ID           string      `db:"id"`
	Email        string      `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	Role         string      `db:"role"`
	Name         string      `db:"name"`
	Bio          null.String `db:"bio"`
	Avatar       null.String `db:"avatar"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		PasswordHash: usr.PasswordHash,
		Role:         usr.Role.String(),
		Name:         usr.Name,
		Bio:          null.NewString(usr.Bio, usr.Bio != ""),
		Avatar:       null.NewString(usr.Avatar, usr.Avatar != ""),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         user.Role(row.Role),
		Name:         row.Name,
		Bio:          row.Bio.String,
		Avatar:       row.Avatar.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapErr maps "no rows" to user.ErrNotFound and email conflicts to user.ErrDuplicateUser.
func (repo *userRepository) trapErr(err error, msg string) error {
	switch {
	case err == sql.ErrNoRows:
		return user.ErrNotFound
	case database.IsUniqueViolation(err, emailUniqueConstraint):
		return user.ErrDuplicateUser
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	row := toUserRow(usr)
	q, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(row.ID, row.Email, row.PasswordHash, row.Role, row.Name, row.Bio, row.Avatar, row.CreatedAt, row.UpdatedAt).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) getUser(ctx context.Context, where sq.Sqlizer) (user.User, error) {
	q, args, err := psql.Select(userColumns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var row userRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapErr(err, "selecting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, sq.Eq{"id": id})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, sq.Eq{"email": email})
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row := toUserRow(usr)
	q, args, err := psql.Update("users").
		SetMap(map[string]interface{}{
			"email":         row.Email,
			"password_hash": sq.Expr("COALESCE(?, password_hash)", null.BytesFrom(row.PasswordHash)),
			"role":          row.Role,
			"name":          row.Name,
			"bio":           row.Bio,
			"avatar":        row.Avatar,
			"updated_at":    row.UpdatedAt,
		}).
		Where(sq.Eq{"id": row.ID}).
		Suffix("RETURNING " + joinColumns(userColumns)).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var updated userRow
	if err = repo.db.GetContext(ctx, &updated, q, args...); err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	return updated.user(), nil
}

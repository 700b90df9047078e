// Package team administers staff accounts in the Cognito user pool.
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/internal/tasks"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const (
	GroupOsteopaths = "osteopaths"
	GroupAssistants = "assistants"
	GroupAdmins     = "admins"
)

// ValidGroup reports whether g is one of the pool's groups.
func ValidGroup(g string) bool {
	switch g {
	case GroupOsteopaths, GroupAssistants, GroupAdmins:
		return true
	}
	return false
}

// CognitoAPI is the subset of the Cognito identity provider client used by
// Directory.
type CognitoAPI interface {
	AdminCreateUser(ctx context.Context, params *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	AdminAddUserToGroup(ctx context.Context, params *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	AdminRemoveUserFromGroup(ctx context.Context, params *cip.AdminRemoveUserFromGroupInput, optFns ...func(*cip.Options)) (*cip.AdminRemoveUserFromGroupOutput, error)
	AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminListGroupsForUser(ctx context.Context, params *cip.AdminListGroupsForUserInput, optFns ...func(*cip.Options)) (*cip.AdminListGroupsForUserOutput, error)
	ListUsers(ctx context.Context, params *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
}

// Welcomer sends the account email to new users.
type Welcomer interface {
	SendWelcome(ctx context.Context, w notify.Welcome) (string, error)
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	Enabled   bool      `json:"enabled"`
	Groups    []string  `json:"groups"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the record-store copy of a staff member.
type Profile struct {
	ID        string    `dynamodbav:"id" json:"id"`
	Email     string    `dynamodbav:"email" json:"email"`
	FirstName string    `dynamodbav:"firstName" json:"firstName"`
	LastName  string    `dynamodbav:"lastName" json:"lastName"`
	Phone     string    `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Groups    []string  `dynamodbav:"groups,stringset,omitempty" json:"groups"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

type Options struct {
	UserPoolID string
	LoginURL   string
	Profiles   *records.Table[Profile]
	Welcome    Welcomer
	Tasks      *tasks.Runner
	Logger     *logging.Logger
}

type Directory struct {
	client   CognitoAPI
	poolID   string
	loginURL string
	profiles *records.Table[Profile]
	welcome  Welcomer
	runner   *tasks.Runner
	logger   *logging.Logger
	now      func() time.Time
}

func NewDirectory(client CognitoAPI, opts Options) *Directory {
	if client == nil {
		panic("team: cognito client cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("team")
	runner := opts.Tasks
	if runner == nil {
		runner = tasks.NewRunner(logger, nil, 0)
	}
	return &Directory{
		client:   client,
		poolID:   opts.UserPoolID,
		loginURL: opts.LoginURL,
		profiles: opts.Profiles,
		welcome:  opts.Welcome,
		runner:   runner,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateUserInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
	Group     string `json:"group" validate:"required,oneof=osteopaths assistants admins"`
}

// CreateUser creates the account, puts it in its group and records the
// profile. The welcome email is sent in the background.
func (d *Directory) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := shared.Validate(in); err != nil {
		return User{}, err
	}

	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(in.Email)},
		{Name: aws.String("email_verified"), Value: aws.String("true")},
		{Name: aws.String("given_name"), Value: aws.String(in.FirstName)},
		{Name: aws.String("family_name"), Value: aws.String(in.LastName)},
	}
	if in.Phone != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(in.Phone)})
	}
	out, err := d.client.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(d.poolID),
		Username:               aws.String(in.Email),
		UserAttributes:         attrs,
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeEmail},
	})
	if err != nil {
		var exists *types.UsernameExistsException
		if errors.As(err, &exists) {
			return User{}, shared.InvalidField("email", "an account already exists for this address")
		}
		return User{}, fmt.Errorf("team: create user: %w", err)
	}
	user := fromCognito(out.User)

	if err := d.addToGroup(ctx, user.Username, in.Group); err != nil {
		if _, delErr := d.client.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{UserPoolId: aws.String(d.poolID), Username: aws.String(user.Username)}); delErr != nil {
			d.logger.Error("failed to roll back user after group failure", "username", user.Username, "error", delErr)
		}
		return User{}, err
	}
	user.Groups = []string{in.Group}

	d.saveProfile(ctx, user)
	d.logger.Info("team user created", "username", user.Username, "group", in.Group)

	if d.welcome != nil {
		welcome := notify.Welcome{To: user.Email, FirstName: user.FirstName, Group: in.Group, LoginURL: d.loginURL}
		d.runner.Go(ctx, "team.welcome", func(ctx context.Context) error {
			_, err := d.welcome.SendWelcome(ctx, welcome)
			return err
		})
	}
	return user, nil
}

func (d *Directory) DeleteUser(ctx context.Context, username string) error {
	user, err := d.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if _, err := d.client.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(d.poolID),
		Username:   aws.String(username),
	}); err != nil {
		return d.mapErr("delete user", username, err)
	}
	if d.profiles != nil && user.ID != "" {
		if _, err := d.profiles.Delete(ctx, user.ID); err != nil {
			d.logger.Warn("failed to delete user profile", "user_id", user.ID, "error", err)
		}
	}
	d.logger.Info("team user deleted", "username", username)
	return nil
}

func (d *Directory) AddUserToGroup(ctx context.Context, username, group string) error {
	if !ValidGroup(group) {
		return shared.InvalidField("group", "must be one of osteopaths assistants admins")
	}
	if err := d.addToGroup(ctx, username, group); err != nil {
		return err
	}
	d.syncGroups(ctx, username)
	return nil
}

func (d *Directory) RemoveUserFromGroup(ctx context.Context, username, group string) error {
	if !ValidGroup(group) {
		return shared.InvalidField("group", "must be one of osteopaths assistants admins")
	}
	if _, err := d.client.AdminRemoveUserFromGroup(ctx, &cip.AdminRemoveUserFromGroupInput{
		UserPoolId: aws.String(d.poolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	}); err != nil {
		return d.mapErr("remove from group", username, err)
	}
	d.syncGroups(ctx, username)
	return nil
}

func (d *Directory) addToGroup(ctx context.Context, username, group string) error {
	if _, err := d.client.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(d.poolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	}); err != nil {
		return d.mapErr("add to group", username, err)
	}
	return nil
}

// ListUsers returns one page of users. Groups are not loaded.
func (d *Directory) ListUsers(ctx context.Context, limit int32, pageToken string) ([]User, string, error) {
	if limit <= 0 || limit > 60 {
		limit = 60
	}
	in := &cip.ListUsersInput{UserPoolId: aws.String(d.poolID), Limit: aws.Int32(limit)}
	if pageToken != "" {
		in.PaginationToken = aws.String(pageToken)
	}
	out, err := d.client.ListUsers(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("team: list users: %w", err)
	}
	users := make([]User, 0, len(out.Users))
	for _, u := range out.Users {
		users = append(users, fromCognito(&u))
	}
	return users, aws.ToString(out.PaginationToken), nil
}

// GetUser loads one user with its groups. A failed group lookup is logged
// and the user returned without groups.
func (d *Directory) GetUser(ctx context.Context, username string) (User, error) {
	out, err := d.client.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(d.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return User{}, d.mapErr("get user", username, err)
	}
	user := User{
		Username:  aws.ToString(out.Username),
		Status:    string(out.UserStatus),
		Enabled:   out.Enabled,
		CreatedAt: aws.ToTime(out.UserCreateDate),
	}
	applyAttributes(&user, out.UserAttributes)

	groups, err := d.client.AdminListGroupsForUser(ctx, &cip.AdminListGroupsForUserInput{
		UserPoolId: aws.String(d.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		d.logger.Warn("failed to list groups for user", "username", username, "error", err)
		return user, nil
	}
	for _, g := range groups.Groups {
		user.Groups = append(user.Groups, aws.ToString(g.GroupName))
	}
	return user, nil
}

func (d *Directory) saveProfile(ctx context.Context, u User) {
	if d.profiles == nil || u.ID == "" {
		return
	}
	now := d.now()
	_, err := d.profiles.Create(ctx, Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Groups:    u.Groups,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		d.logger.Warn("failed to write user profile", "user_id", u.ID, "error", err)
	}
}

func (d *Directory) syncGroups(ctx context.Context, username string) {
	if d.profiles == nil {
		return
	}
	u, err := d.GetUser(ctx, username)
	if err != nil || u.ID == "" {
		return
	}
	if _, err := d.profiles.Update(ctx, u.ID, records.Fields{"groups": u.Groups, "updatedAt": d.now()}, nil); err != nil {
		d.logger.Warn("failed to sync profile groups", "user_id", u.ID, "error", err)
	}
}

func (d *Directory) mapErr(op, username string, err error) error {
	var nf *types.UserNotFoundException
	if errors.As(err, &nf) {
		return &shared.NotFoundError{Entity: "user", ID: username}
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return shared.InvalidField("group", "does not exist in the user pool")
	}
	return fmt.Errorf("team: %s: %w", op, err)
}

func fromCognito(u *types.UserType) User {
	if u == nil {
		return User{}
	}
	user := User{
		Username:  aws.ToString(u.Username),
		Status:    string(u.UserStatus),
		Enabled:   u.Enabled,
		CreatedAt: aws.ToTime(u.UserCreateDate),
	}
	applyAttributes(&user, u.Attributes)
	return user
}

func applyAttributes(u *User, attrs []types.AttributeType) {
	for _, a := range attrs {
		v := aws.ToString(a.Value)
		switch aws.ToString(a.Name) {
		case "sub":
			u.ID = v
		case "email":
			u.Email = v
		case "given_name":
			u.FirstName = v
		case "family_name":
			u.LastName = v
		case "phone_number":
			u.Phone = v
		}
	}
}

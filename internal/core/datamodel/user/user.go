package user

import "time"

type User struct {
	ID             int64     `gorm:"primaryKey"`
	EmployeeNumber string    `gorm:"column:employee_number;size:20;uniqueIndex;not null"`
	Name           string    `gorm:"column:name;size:100;not null"`
	Email          string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash   string    `gorm:"column:password_hash;not null"`
	Status         string    `gorm:"column:status;size:20;not null"`
	DepartmentID   *int64    `gorm:"column:department_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

type Employment struct {
	ID           int64      `gorm:"primaryKey"`
	UserID       int64      `gorm:"column:user_id;index;not null"`
	StartDate    time.Time  `gorm:"column:start_date;not null"`
	EndDate      *time.Time `gorm:"column:end_date"`
	ContractType string     `gorm:"column:contract_type;size:20;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Employment) TableName() string {
	return "employment"
}

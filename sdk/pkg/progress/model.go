package progress

// CourseModule 租户库中的课程模块
type CourseModule struct {
	Cmoid string `gorm:"column:cmoid;primaryKey"`
	Title string `gorm:"column:title"`
}

func (CourseModule) TableName() string {
	return "courses_modules"
}

// ModuleProgress 用户在某个模块上的学习进度，由课程系统预先创建，这里只更新
type ModuleProgress struct {
	UID             string  `gorm:"column:uid;primaryKey"`
	Cmoid           string  `gorm:"column:cmoid;primaryKey"`
	CurrentProgress float64 `gorm:"column:current_progress"`
	Timespent       float64 `gorm:"column:timespent"` // 累计观看时长，单位秒
}

func (ModuleProgress) TableName() string {
	return "courses_modules_usr"
}

package migration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gorm.io/gorm"
)

// InitDbConfig SQL 执行器配置
type InitDbConfig struct {
	SQLFiles    []string // SQL 文件路径（按执行顺序）
	StopOnError bool     // 遇到错误是否停止
}

// InitDb 依次执行 SQL 初始化脚本，文件不存在则跳过
func InitDb(db *gorm.DB, config InitDbConfig) error {
	for _, sqlFile := range config.SQLFiles {
		if _, err := os.Stat(sqlFile); os.IsNotExist(err) {
			continue
		}

		if err := executeSQLFile(db, sqlFile, config.StopOnError); err != nil {
			return fmt.Errorf("执行 SQL 文件 %s 失败: %w", sqlFile, err)
		}
	}
	return nil
}

func executeSQLFile(db *gorm.DB, filePath string, stopOnError bool) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return ExecScript(db, file, stopOnError)
}

// ExecScript 按分号切分脚本并逐条执行，跳过空行和 -- 注释
func ExecScript(db *gorm.DB, r io.Reader, stopOnError bool) error {
	scanner := bufio.NewScanner(r)
	var statement strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		statement.WriteString(line)
		statement.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			sql := strings.TrimSpace(statement.String())
			if sql != "" && sql != ";" {
				if err := db.Exec(sql).Error; err != nil && stopOnError {
					return err
				}
			}
			statement.Reset()
		}
	}

	return scanner.Err()
}

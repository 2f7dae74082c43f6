package di

import (
	"go.uber.org/dig"
)

// Container 全局依赖注入容器
// 由bootstrap在启动时初始化，服务对象均从容器中解析
var Container *dig.Container

// InitContainer 创建新的依赖注入容器并替换全局实例
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

/*
Package sandbox 提供受限表达式求值器，供 expression 单元与 evaluate_condition 工具使用。

# 概述

表达式先经词法分析与递归下降解析得到语法树，再在求值前整体校验：
import / lambda、非白名单函数调用、双下划线属性访问、以及运行时内省名称
（__import__、globals、getattr 等）都会在任何求值发生之前被拒绝，返回
*Violation。通过校验的语法树只能访问调用方传入的 bindings 与白名单纯函数，
沙箱内不存在文件、网络或反射能力。

# 语法

  - 字面量：整数、浮点数、单/双引号字符串、True / False / None（兼容 true / false / null）
  - 容器：[a, b]、(a, b)、{"k": v}
  - 访问：a.b、a[0]、a["k"]
  - 运算：+ - * / // % **，比较 == != < <= > >= in / not in（支持链式），
    and / or / not（兼容 && / || / !），条件表达式 a if cond else b
  - 函数：abs min max round sum len sorted int float str bool list tuple all any

# 使用

	prog, err := sandbox.Compile("score >= 0.8 and len(items) > 0")
	if err != nil {
		return err // *Violation 或 *SyntaxError
	}
	ok, err := prog.EvalBool(map[string]any{"score": 0.9, "items": []any{1}})
*/
package sandbox

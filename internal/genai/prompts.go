package genai

// RecognitionPrompt asks a vision model to rewrite a timetable screenshot in
// the day-marker text form that timetable.Parse understands.
const RecognitionPrompt = `你将看到一张大学“学生课表”的截图，请根据图片内容输出一段【规范的课表文本】。
不要逐行原样 OCR，也不要输出 JSON，而是把整张课表转写成下面这种便于程序解析的长句式。

目标格式示例：
星期一：第一、二节 网络安全攻防技术 赵洋 R0902840.01 1-7周 第二教学楼104；
        第三、四节 专业写作基础 张培培 A6200810.02 1-9周 第二教学楼408；
        第五、六、七、八节 企业合作课程 T0902820.01 1-9周 科技实验大楼705；
星期二：第一、二节 马克思主义基本原理 郭英蕊 M1801230.06 7周 第二教学楼212；
星期六：第五、六节 形势与政策 商继政 M1800220.C4 14周 第二教学楼206；

要求：
1. 按星期一到星期日的顺序输出有课的日子，每天以“星期X：”开头，课程之间用中文分号“；”分隔。
2. 每门课字段顺序固定：节次 课程名称 任课教师（如有） 课程代码 周次 教室（多个教室用“、”连接），字段之间用空格分隔。
3. 周次用阿拉伯数字，如 1-7周、7周、1-14周；“连10-12”“10～12”“10至12”统一写成“10-12周”，每条都必须含有周次。
4. 节次用中文数字，如 第一、二节、第九、十节；连续超过两节必须完整列出所有节次。
5. 同一课程在不同周次对应不同教室、教师或课程代码时，必须拆成多行，每行只含一组周次和教室。
6. 课程方块中以括号列出多组“周次+教室”时，逐组展开为多行，节次与该方块一致。
7. 不同节次的周次不要合并，即使教室相同也要分行输出。
8. 同一课程同一天同一教室由不同教师分周次授课时，每位教师输出完全相同的节次范围。
9. 只输出这一段课表文本，不要输出任何解释、Markdown 或其它内容。`

// Generation settings.
const (
	recognitionTemperature = 0.1
	recognitionMaxTokens   = 4096
	answerTemperature      = 0.3
	answerMaxTokens        = 800
)
